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
	"testing"

	"github.com/smalltalk-go/lst/object"
)

// Method object field indices, matching buildMethod's layout in
// parser.go (duplicated here since interp/frame.go's copy is
// unexported and compile has no reason to expose its own outside
// tests).
const (
	methodSelector  = 1
	methodBytecodes = 2
	methodLiterals  = 3
)

func bootTable(t *testing.T) *object.Table {
	t.Helper()
	tbl := object.NewTable(object.SmallMem)
	if err := object.Bootstrap(tbl); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return tbl
}

// TestCompileMethodBytecodeShape exercises the literal "foo ^ 3 + 4"
// walkthrough: two integer literals land in the literal pool (pushed
// via PushLiteral, not the PushConstant small-integer shortcuts, since
// neither 3 nor 4 is one of 0/1/2/-1), "+" resolves to the common
// binary-selector fast path rather than a literal selector send, and
// the explicit '^' suppresses the implicit trailing PopTop+SelfReturn
// tail parseBody would otherwise append.
func TestCompileMethodBytecodeShape(t *testing.T) {
	tbl := bootTable(t)
	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	m, err := CompileMethod(tbl, obj, "foo\n\t^ 3 + 4")
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}

	sel, err := tbl.Field(m, methodSelector)
	if err != nil {
		t.Fatalf("Field(selector): %v", err)
	}
	selText, err := tbl.Bytes(sel)
	if err != nil {
		t.Fatalf("Bytes(selector): %v", err)
	}
	if string(selText) != "foo" {
		t.Fatalf("selector = %q, want %q", selText, "foo")
	}

	litsRef, err := tbl.Field(m, methodLiterals)
	if err != nil {
		t.Fatalf("Field(literals): %v", err)
	}
	if n := tbl.FieldCount(litsRef); n < 2 {
		t.Fatalf("literal count = %d, want >= 2", n)
	}

	codeRef, err := tbl.Field(m, methodBytecodes)
	if err != nil {
		t.Fatalf("Field(bytecodes): %v", err)
	}
	code, err := tbl.Bytes(codeRef)
	if err != nil {
		t.Fatalf("Bytes(bytecodes): %v", err)
	}
	want := []byte{
		byte(OpPushLiteral)<<4 | 0,
		byte(OpPushLiteral)<<4 | 1,
		byte(OpSendBinary)<<4 | 0,
		byte(OpDoSpecial)<<4 | byte(SpecialStackReturn),
	}
	if len(code) != len(want) {
		t.Fatalf("bytecode = % X, want % X", code, want)
	}
	for i := range want {
		if code[i] != want[i] {
			t.Fatalf("bytecode = % X, want % X", code, want)
		}
	}
}

// TestCompileMethodImplicitSelfReturn exercises the other half of
// parseBody's tail logic: a body with no explicit '^' gets PopTop then
// SelfReturn appended, the "F5 F1" pair.
func TestCompileMethodImplicitSelfReturn(t *testing.T) {
	tbl := bootTable(t)
	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	m, err := CompileMethod(tbl, obj, "foo\n\t3 + 4")
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}
	codeRef, err := tbl.Field(m, methodBytecodes)
	if err != nil {
		t.Fatalf("Field(bytecodes): %v", err)
	}
	code, err := tbl.Bytes(codeRef)
	if err != nil {
		t.Fatalf("Bytes(bytecodes): %v", err)
	}
	if len(code) < 2 {
		t.Fatalf("bytecode too short: % X", code)
	}
	last2 := code[len(code)-2:]
	wantLast2 := []byte{
		byte(OpDoSpecial)<<4 | byte(SpecialPopTop),
		byte(OpDoSpecial)<<4 | byte(SpecialSelfReturn),
	}
	if last2[0] != wantLast2[0] || last2[1] != wantLast2[1] {
		t.Fatalf("last two bytecodes = % X, want % X (PopTop, SelfReturn)", last2, wantLast2)
	}
}

func TestCompileMethodUndeclaredVariableFails(t *testing.T) {
	tbl := bootTable(t)
	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	if _, err := CompileMethod(tbl, obj, "bar\n\t^ notAGlobalOrAnything"); err == nil {
		t.Fatalf("CompileMethod accepted an undeclared variable reference")
	}
}

func TestCompileMethodInstanceVariableAccess(t *testing.T) {
	tbl := bootTable(t)
	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	cls, err := tbl.NewClass("Counter", 0, obj)
	if err != nil {
		t.Fatalf("NewClass: %v", err)
	}
	if err := tbl.SetField(cls, 1, object.NewSmallInt(1)); err != nil {
		t.Fatalf("SetField(instSize): %v", err)
	}
	ivars, err := tbl.NewArray(1)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	countSym, err := tbl.NewSymbol("count")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	if err := tbl.SetField(ivars, 0, countSym); err != nil {
		t.Fatalf("SetField(ivars): %v", err)
	}
	if err := tbl.SetField(cls, 4, ivars); err != nil {
		t.Fatalf("SetField(class ivars): %v", err)
	}

	m, err := CompileMethod(tbl, cls, "count\n\t^ count")
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}
	codeRef, _ := tbl.Field(m, methodBytecodes)
	code, _ := tbl.Bytes(codeRef)
	want := []byte{
		byte(OpPushInstance)<<4 | 0,
		byte(OpDoSpecial)<<4 | byte(SpecialStackReturn),
	}
	if len(code) != len(want) || code[0] != want[0] || code[1] != want[1] {
		t.Fatalf("bytecode = % X, want % X", code, want)
	}
}
