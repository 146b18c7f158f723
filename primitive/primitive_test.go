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
	"testing"

	"github.com/smalltalk-go/lst/interp"
	"github.com/smalltalk-go/lst/object"
)

func bootVM(t *testing.T) *interp.VM {
	t.Helper()
	tbl := object.NewTable(object.SmallMem)
	if err := object.Bootstrap(tbl); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	vm := interp.New(tbl)
	vm.Prims = New()
	return vm
}

func TestArithAddWithinRange(t *testing.T) {
	vm := bootVM(t)
	result, ok := vm.Prims.Invoke(vm, 60, []object.Ref{object.NewSmallInt(2), object.NewSmallInt(3)})
	if !ok || !result.IsSmallInt() || result.SmallInt() != 5 {
		t.Fatalf("2 + 3 = (%v, %v), want (5, true)", result, ok)
	}
}

// TestArithAddOverflowReportsMiss grounds the overflow-to-dispatched-send
// fallback at the primitive level: two operands whose sum would not fit
// back into the tagged small-integer range must report ok=false rather
// than silently wrapping or truncating.
func TestArithAddOverflowReportsMiss(t *testing.T) {
	vm := bootVM(t)
	result, ok := vm.Prims.Invoke(vm, 60, []object.Ref{
		object.NewSmallInt(object.MaxSmallInt),
		object.NewSmallInt(object.MaxSmallInt),
	})
	if ok {
		t.Fatalf("overflowing add reported ok=true with result %v, want a miss", result)
	}
}

func TestArithDivisionRequiresExactQuotient(t *testing.T) {
	vm := bootVM(t)
	if _, ok := vm.Prims.Invoke(vm, 63, []object.Ref{object.NewSmallInt(7), object.NewSmallInt(2)}); ok {
		t.Fatalf("7 / 2 (not exact) reported ok=true, want a miss so it falls back to a real division method")
	}
	result, ok := vm.Prims.Invoke(vm, 63, []object.Ref{object.NewSmallInt(6), object.NewSmallInt(2)})
	if !ok || !result.IsSmallInt() || result.SmallInt() != 3 {
		t.Fatalf("6 / 2 = (%v, %v), want (3, true)", result, ok)
	}
}

func TestArithDivisionByZeroReportsMiss(t *testing.T) {
	vm := bootVM(t)
	if _, ok := vm.Prims.Invoke(vm, 63, []object.Ref{object.NewSmallInt(6), object.NewSmallInt(0)}); ok {
		t.Fatalf("6 / 0 reported ok=true, want a miss")
	}
}

func TestArithComparisonsReturnInternedBooleans(t *testing.T) {
	vm := bootVM(t)
	tbl := vm.Tbl
	result, ok := vm.Prims.Invoke(vm, 65, []object.Ref{object.NewSmallInt(1), object.NewSmallInt(2)}) // <
	if !ok || result != tbl.True {
		t.Fatalf("1 < 2 = (%v, %v), want (True, true)", result, ok)
	}
	result, ok = vm.Prims.Invoke(vm, 65, []object.Ref{object.NewSmallInt(2), object.NewSmallInt(1)})
	if !ok || result != tbl.False {
		t.Fatalf("2 < 1 = (%v, %v), want (False, true)", result, ok)
	}
}

func TestArithRejectsNonSmallIntOperands(t *testing.T) {
	vm := bootVM(t)
	if _, ok := vm.Prims.Invoke(vm, 60, []object.Ref{object.Nil, object.NewSmallInt(1)}); ok {
		t.Fatalf("arithmetic on a non-SmallInt operand reported ok=true, want a miss")
	}
}

// TestBlockCreateBindsTemplateToContext grounds primitive 29: a fresh
// Block inherits the compile-time template's argument shape but is
// bound to whichever context activated it, so two activations of the
// same block literal never alias each other's state.
func TestBlockCreateBindsTemplateToContext(t *testing.T) {
	vm := bootVM(t)
	tbl := vm.Tbl

	template, err := tbl.NewBlock()
	if err != nil {
		t.Fatalf("NewBlock(template): %v", err)
	}
	if err := tbl.SetField(template, blkArgumentCount, object.NewSmallInt(2)); err != nil {
		t.Fatalf("SetField(argCount): %v", err)
	}
	if err := tbl.SetField(template, blkArgumentLocation, object.NewSmallInt(3)); err != nil {
		t.Fatalf("SetField(argLoc): %v", err)
	}
	if err := tbl.SetField(template, blkBytecountPosition, object.NewSmallInt(17)); err != nil {
		t.Fatalf("SetField(entry): %v", err)
	}

	ctxA, err := tbl.AllocObject(template, 0)
	if err != nil {
		t.Fatalf("AllocObject(ctxA): %v", err)
	}
	ctxB, err := tbl.AllocObject(template, 0)
	if err != nil {
		t.Fatalf("AllocObject(ctxB): %v", err)
	}

	blkA, ok := vm.Prims.Invoke(vm, 29, []object.Ref{template, ctxA})
	if !ok {
		t.Fatalf("blockCreate(ctxA) reported a miss")
	}
	blkB, ok := vm.Prims.Invoke(vm, 29, []object.Ref{template, ctxB})
	if !ok {
		t.Fatalf("blockCreate(ctxB) reported a miss")
	}
	if blkA == blkB {
		t.Fatalf("two activations of the same block template produced the same Block object")
	}

	gotCtxA, err := tbl.Field(blkA, blkContext)
	if err != nil {
		t.Fatalf("Field(blkA context): %v", err)
	}
	if gotCtxA != ctxA {
		t.Fatalf("blkA's bound context = %v, want %v", gotCtxA, ctxA)
	}
	argCount, err := tbl.Field(blkA, blkArgumentCount)
	if err != nil {
		t.Fatalf("Field(blkA argCount): %v", err)
	}
	if !argCount.IsSmallInt() || argCount.SmallInt() != 2 {
		t.Fatalf("blkA argCount = %v, want 2 (copied from the template)", argCount)
	}
}

func TestBlockCreateRejectsWrongArity(t *testing.T) {
	vm := bootVM(t)
	if _, ok := vm.Prims.Invoke(vm, 29, []object.Ref{object.Nil}); ok {
		t.Fatalf("blockCreate with one argument reported ok=true, want a miss")
	}
}

func TestSystemPrimitiveReportsShellExitStatus(t *testing.T) {
	vm := bootVM(t)
	tbl := vm.Tbl

	trueCmd, err := tbl.NewStString("true")
	if err != nil {
		t.Fatalf("NewStString: %v", err)
	}
	result, ok := vm.Prims.Invoke(vm, 150, []object.Ref{trueCmd})
	if !ok || result != tbl.True {
		t.Fatalf("system(\"true\") = (%v, %v), want (True, true)", result, ok)
	}

	falseCmd, err := tbl.NewStString("false")
	if err != nil {
		t.Fatalf("NewStString: %v", err)
	}
	result, ok = vm.Prims.Invoke(vm, 150, []object.Ref{falseCmd})
	if !ok || result != tbl.False {
		t.Fatalf("system(\"false\") = (%v, %v), want (False, true)", result, ok)
	}
}

func TestInvokeRoutesByPrimitiveNumberRange(t *testing.T) {
	vm := bootVM(t)
	// A number in the 1-59 range that objectPrimitive does not handle
	// must report a miss rather than panicking on an argument shape
	// meant for a different primitive.
	if _, ok := vm.Prims.Invoke(vm, 5, []object.Ref{}); ok {
		t.Fatalf("Invoke(5) with no arguments reported ok=true, want a miss")
	}
}
