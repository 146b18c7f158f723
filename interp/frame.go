// Copyright (C) 2024 the lst authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package interp implements the bytecode interpreter: the process
// stack's linkage-header frame layout, the inline method cache, and
// the fetch/decode/dispatch loop.
package interp

// Linkage header field offsets, relative to a frame's linkPointer (a
// 1-based index into the process stack array): the five-slot
// prologue written at the start of every
// non-reified call frame.
const (
	ofstPrevLink   = 0
	ofstContext    = 1
	ofstReturnPt   = 2
	ofstMethod     = 3
	ofstByteOffset = 4
	linkageSize    = 5
)

// Process object field indices, matching object.NewProcess's layout.
const (
	processStack    = 0
	processStackTop = 1
	processLinkPtr  = 2
)

// Method object field indices, matching compile's buildMethod layout.
const (
	methodSource    = 0
	methodSelector  = 1
	methodBytecodes = 2
	methodLiterals  = 3
	methodStackSize = 4
	methodTempSize  = 5
	methodClass     = 6
	methodWatch     = 7
)

// Context object field indices, matching object.NewContext's layout.
const (
	contextLink   = 0
	contextMethod = 1
	contextArgs   = 2
	contextTemps  = 3
)

// Block object field indices, matching compile's parseBlockLiteral
// layout.
const (
	blockContext           = 0
	blockArgumentCount     = 1
	blockArgumentLocation  = 2
	blockBytecountPosition = 3
)

// stackCushion is the extra slack allocated whenever the process
// stack is grown, beyond what the new frame strictly needs.
const stackCushion = 100
