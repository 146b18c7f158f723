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

package primitive

import (
	"github.com/smalltalk-go/lst/interp"
	"github.com/smalltalk-go/lst/object"
)

// Block field offsets, matching interp/frame.go's blockContext etc.
// (the two packages can't share the unexported constants directly, so
// the shape is repeated here; it is part of the fixed Block layout
// construct.go's NewBlock allocates).
const (
	blkContext           = 0
	blkArgumentCount     = 1
	blkArgumentLocation  = 2
	blkBytecountPosition = 3
)

// objectPrimitive implements the 1-59 memory/object-manipulation
// primitives this table is responsible for (the interpreter itself
// fast-paths 5, 11, 21, 25, 31, 53, 58, 87 directly — see
// interp/send.go's fastPrimitive).
func objectPrimitive(vm *interp.VM, num int, args []object.Ref) (object.Ref, bool) {
	switch num {
	case 29: // block creation: bind a fresh Block to the sending context
		return blockCreate(vm, args)
	}
	return object.Nil, false
}

// blockCreate implements primitive 29: given a compile-time Block
// template (argument count and entry offset already populated by the
// compiler, field 0 still nil) and the enclosing thisContext, allocate
// a new Block that carries the template's shape but is bound to this
// particular activation's context — so two activations of the same
// block literal (recursion, a loop body capturing a fresh context)
// never alias one another's captured state.
func blockCreate(vm *interp.VM, args []object.Ref) (object.Ref, bool) {
	if len(args) != 2 {
		return object.Nil, false
	}
	template, ctx := args[0], args[1]
	blk, err := vm.Tbl.NewBlock()
	if err != nil {
		return object.Nil, false
	}
	argCount, err := vm.Tbl.Field(template, blkArgumentCount)
	if err != nil {
		return object.Nil, false
	}
	argLoc, err := vm.Tbl.Field(template, blkArgumentLocation)
	if err != nil {
		return object.Nil, false
	}
	entry, err := vm.Tbl.Field(template, blkBytecountPosition)
	if err != nil {
		return object.Nil, false
	}
	if err := vm.Tbl.SetField(blk, blkArgumentCount, argCount); err != nil {
		return object.Nil, false
	}
	if err := vm.Tbl.SetField(blk, blkArgumentLocation, argLoc); err != nil {
		return object.Nil, false
	}
	if err := vm.Tbl.SetField(blk, blkBytecountPosition, entry); err != nil {
		return object.Nil, false
	}
	if err := vm.Tbl.SetField(blk, blkContext, ctx); err != nil {
		return object.Nil, false
	}
	return blk, true
}
