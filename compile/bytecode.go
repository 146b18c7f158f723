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

// Package compile implements the recursive-descent parser and bytecode
// emitter: source text in, a populated Method object out.
package compile

// Op is a bytecode's high nibble: the opcode proper. This numbering is
// part of the image's ABI and must never be renumbered once assigned.
type Op byte

const (
	OpExtended      Op = 0
	OpPushInstance  Op = 1
	OpPushArgument  Op = 2
	OpPushTemporary Op = 3
	OpPushLiteral   Op = 4
	OpPushConstant  Op = 5
	OpAssignInstance Op = 6
	OpAssignTemporary Op = 7
	OpMarkArguments Op = 8
	OpSendMessage   Op = 9
	OpSendUnary     Op = 10
	OpSendBinary    Op = 11
	OpDoPrimitive   Op = 13
	OpDoSpecial     Op = 15
)

// PushConstant low-nibble meanings.
const (
	ConstZero Op = iota
	ConstOne
	ConstTwo
	ConstMinusOne
	ConstThisContext
	ConstNil
	ConstTrue
	ConstFalse
)

// Special is the DoSpecial opcode's low-nibble operation.
type Special byte

const (
	SpecialSelfReturn Special = 1
	SpecialStackReturn Special = 2
	SpecialDuplicate  Special = 4
	SpecialPopTop     Special = 5
	SpecialBranch     Special = 6
	SpecialBranchIfTrue Special = 7
	SpecialBranchIfFalse Special = 8
	SpecialAndBranch  Special = 9
	SpecialOrBranch   Special = 10
	SpecialSendToSuper Special = 11
)

// primBlockCreate is the primitive number that stamps the enclosing
// context onto a compile-time-built Block template (PushLiteral the
// template, PushConstant thisContext, then this primitive with 2
// arguments); it must match the primitive package's own table entry.
const primBlockCreate = 29

// Hard per-method limits.
const (
	MaxBytecodes = 256
	MaxLiterals  = 128
	MaxTemps     = 32
	MaxArgs      = 32
	MaxInstVars  = 32
)

// emitPacked appends the nibble-pair encoding of (op, low) to code,
// escaping through the Extended prefix when low does not fit in a
// nibble.
func emitPacked(code []byte, op Op, low int) ([]byte, error) {
	if low < 16 {
		return append(code, byte(op)<<4|byte(low)), nil
	}
	if low > 255 {
		return nil, errTooLarge("operand", low)
	}
	code = append(code, byte(op)) // Extended: high=0, low nibble = true opcode
	code = append(code, byte(low))
	return code, nil
}

// DecodeAt decodes the bytecode at position p, returning the opcode,
// its operand, and the index just past the instruction.
func DecodeAt(code []byte, p int) (op Op, operand int, next int, ok bool) {
	if p < 0 || p >= len(code) {
		return 0, 0, p, false
	}
	b := code[p]
	high := Op(b >> 4)
	low := int(b & 0x0F)
	if high == OpExtended {
		if p+1 >= len(code) {
			return 0, 0, p, false
		}
		return Op(low), int(code[p+1]), p + 2, true
	}
	return high, low, p + 1, true
}
