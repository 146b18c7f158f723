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

// Package primitive implements the host primitive table DoPrimitive
// falls through to for any number interp's own fetch/decode loop
// doesn't inline directly: object-manipulation primitives outside the
// eight interp handles itself, integer arithmetic/comparison fast
// paths, file and image I/O, and the system()-call escape.
package primitive

import (
	"github.com/smalltalk-go/lst/interp"
	"github.com/smalltalk-go/lst/object"
)

// Table is the host primitive dispatcher, satisfying interp.Primitives.
type Table struct {
	files *fileTable
}

// New builds a primitive Table with its own file-descriptor table
// for the 100-149 I/O primitive range.
func New() *Table {
	return &Table{files: newFileTable()}
}

// Invoke dispatches num into the four primitive-number ranges:
// 1-59 memory/object manipulation, 60-79 integer fast
// paths, 100-149 I/O, 150+ system escape. A primitive this table
// doesn't recognize reports ok=false, same as a primitive that
// recognizes its number but can't apply to the given arguments — both
// mean "fall back to a normal message send".
func (t *Table) Invoke(vm *interp.VM, num int, args []object.Ref) (object.Ref, bool) {
	switch {
	case num >= 60 && num <= 79:
		return arithPrimitive(vm, num, args)
	case num >= 100 && num <= 149:
		return t.files.invoke(vm, num-100, args)
	case num >= 150:
		return systemPrimitive(vm, num-150, args)
	default:
		return objectPrimitive(vm, num, args)
	}
}
