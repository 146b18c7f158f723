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

package compile

import (
	"fmt"

	"github.com/smalltalk-go/lst/object"
)

func errTooLarge(what string, n int) error {
	return fmt.Errorf("compile: %s %d exceeds the encodable range", what, n)
}

// assembler accumulates a method's bytecode stream and literal pool.
// Branch targets are 1-based byte offsets into the finished code array;
// patchBranch rewrites a previously emitted
// placeholder once the jump's destination is known.
type assembler struct {
	code     []byte
	literals []object.Ref
	litIndex map[object.Ref]int
	maxTemp  int
}

func newAssembler() *assembler {
	return &assembler{litIndex: make(map[object.Ref]int)}
}

// pos is the 1-based offset a branch emitted right now would target.
func (a *assembler) pos() int { return len(a.code) + 1 }

func (a *assembler) emit(op Op, low int) error {
	if len(a.code)+2 > MaxBytecodes {
		return errTooLarge("method bytecode length", len(a.code)+2)
	}
	code, err := emitPacked(a.code, op, low)
	if err != nil {
		return err
	}
	a.code = code
	return nil
}

// emitSpecial emits DoSpecial with the given Special as its low nibble.
func (a *assembler) emitSpecial(s Special) error {
	return a.emit(OpDoSpecial, int(s))
}

// emitBranch emits a DoSpecial branch special with a placeholder
// target byte, returning the code index of that operand byte (for a
// later patchBranch).
func (a *assembler) emitBranch(s Special) (patchAt int, err error) {
	before := len(a.code)
	if err := a.emit(OpDoSpecial, int(s)); err != nil {
		return 0, err
	}
	// DoSpecial's low nibble is always < 16, so this never escapes to
	// Extended form; the branch target occupies its own following byte.
	a.code = append(a.code, 0)
	_ = before
	return len(a.code) - 1, nil
}

// patchBranch writes the 1-based target position into the operand byte
// at index patchAt.
func (a *assembler) patchBranch(patchAt, target int) error {
	if target < 1 || target > 255 {
		return errTooLarge("branch target", target)
	}
	a.code[patchAt] = byte(target)
	return nil
}

// emitSendToSuper emits the SendToSuper special followed by the
// literal index of the selector symbol, mirroring emitDoPrimitive's
// opcode-plus-operand-byte shape.
func (a *assembler) emitSendToSuper(litIndex int) error {
	if err := a.emit(OpDoSpecial, int(SpecialSendToSuper)); err != nil {
		return err
	}
	if litIndex < 0 || litIndex > 255 {
		return errTooLarge("literal index", litIndex)
	}
	a.code = append(a.code, byte(litIndex))
	return nil
}

// emitDoPrimitive emits DoPrimitive argCount followed by the raw
// primitive number byte.
func (a *assembler) emitDoPrimitive(argCount, primNum int) error {
	if err := a.emit(OpDoPrimitive, argCount); err != nil {
		return err
	}
	if primNum < 0 || primNum > 255 {
		return errTooLarge("primitive number", primNum)
	}
	a.code = append(a.code, byte(primNum))
	return nil
}

// literal interns v in the method's literal pool, returning its index.
func (a *assembler) literal(v object.Ref) (int, error) {
	if i, ok := a.litIndex[v]; ok {
		return i, nil
	}
	if len(a.literals) >= MaxLiterals {
		return 0, errTooLarge("literal pool size", len(a.literals)+1)
	}
	i := len(a.literals)
	a.literals = append(a.literals, v)
	a.litIndex[v] = i
	return i, nil
}

func (a *assembler) touchTemp(i int) {
	if i > a.maxTemp {
		a.maxTemp = i
	}
}
