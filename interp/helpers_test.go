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

package interp

import (
	"testing"

	"github.com/smalltalk-go/lst/compile"
	"github.com/smalltalk-go/lst/object"
)

func bootTable(t *testing.T) *object.Table {
	t.Helper()
	tbl := object.NewTable(object.SmallMem)
	if err := object.Bootstrap(tbl); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return tbl
}

func compileOn(t *testing.T, tbl *object.Table, class object.Ref, src string) object.Ref {
	t.Helper()
	m, err := compile.CompileMethod(tbl, class, src)
	if err != nil {
		t.Fatalf("CompileMethod(%q): %v", src, err)
	}
	return m
}

// runRootMethod builds a Process whose single outermost frame runs
// method against receiver, drives Execute to completion, and returns
// the value left on the stack at the frame's return point — the
// layout buildFrame (send.go) writes for every ordinary call, with a
// boxed Nil standing in for the absent caller link that marks this as
// the outermost frame.
func runRootMethod(t *testing.T, vm *VM, receiver, method object.Ref) object.Ref {
	t.Helper()
	tbl := vm.Tbl
	proc, err := tbl.NewProcess(64)
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	stack, err := tbl.Field(proc, processStack)
	if err != nil {
		t.Fatalf("Field(stack): %v", err)
	}

	const returnPoint = 1
	if err := tbl.SetField(stack, returnPoint-1, receiver); err != nil {
		t.Fatalf("SetField(receiver): %v", err)
	}
	top := returnPoint
	newLink := top + 1
	pos := newLink
	write := func(v object.Ref) {
		if err := tbl.SetField(stack, pos-1, v); err != nil {
			t.Fatalf("SetField(header): %v", err)
		}
		pos++
	}
	write(object.Nil)                                  // prevLink: nil marks the outermost frame
	write(object.Nil)                                  // context: not yet reified
	write(object.NewSmallInt(int64(returnPoint)))       // returnPt
	write(method)                                       // method
	write(object.NewSmallInt(1))                        // byteOffset: start of the bytecode
	tempSizeRef, err := tbl.Field(method, methodTempSize)
	if err != nil {
		t.Fatalf("Field(methodTempSize): %v", err)
	}
	for i := 0; i < int(tempSizeRef.SmallInt()); i++ {
		write(object.Nil)
	}

	if err := tbl.SetField(proc, processStackTop, object.NewSmallInt(int64(pos-1))); err != nil {
		t.Fatalf("SetField(stackTop): %v", err)
	}
	if err := tbl.SetField(proc, processLinkPtr, object.NewSmallInt(int64(newLink))); err != nil {
		t.Fatalf("SetField(linkPtr): %v", err)
	}

	for {
		running, err := vm.Execute(proc, 10000)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !running {
			break
		}
	}

	finalStack, err := tbl.Field(proc, processStack)
	if err != nil {
		t.Fatalf("Field(stack) after Execute: %v", err)
	}
	result, err := tbl.Field(finalStack, returnPoint-1)
	if err != nil {
		t.Fatalf("Field(result): %v", err)
	}
	return result
}
