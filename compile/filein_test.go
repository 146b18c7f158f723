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
	"strings"
	"testing"

	"github.com/smalltalk-go/lst/object"
)

func TestFileInDeclaresClassAndMethod(t *testing.T) {
	tbl := bootTable(t)
	src := `Class Animal Object name
Methods Animal
speak
	^ 'generic noise'
|
]
`
	if err := FileIn(tbl, strings.NewReader(src)); err != nil {
		t.Fatalf("FileIn: %v", err)
	}
	cls, err := tbl.WellKnownClass("Animal")
	if err != nil {
		t.Fatalf("WellKnownClass(Animal): %v", err)
	}
	super, err := tbl.Field(cls, 3)
	if err != nil {
		t.Fatalf("Field(super): %v", err)
	}
	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass(Object): %v", err)
	}
	if super != obj {
		t.Fatalf("Animal's superclass = %v, want Object (%v)", super, obj)
	}
	size, err := tbl.Field(cls, 1)
	if err != nil {
		t.Fatalf("Field(instSize): %v", err)
	}
	if size.SmallInt() != 1 {
		t.Fatalf("Animal instance size = %d, want 1 (one declared ivar)", size.SmallInt())
	}

	speakSym, err := tbl.NewSymbol("speak")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	method, found, err := tbl.MethodLookup(cls, speakSym)
	if err != nil {
		t.Fatalf("MethodLookup: %v", err)
	}
	if !found {
		t.Fatalf("speak method not installed on Animal")
	}
	codeRef, err := tbl.Field(method, methodBytecodes)
	if err != nil {
		t.Fatalf("Field(bytecodes): %v", err)
	}
	if n := len(mustBytes(t, tbl, codeRef)); n == 0 {
		t.Fatalf("speak method has empty bytecode")
	}
}

func TestFileInMultipleMethodsInOneBlock(t *testing.T) {
	tbl := bootTable(t)
	src := `Class Box Object contents
Methods Box
contents
	^ contents
|contents: aValue
	contents <- aValue
]
`
	if err := FileIn(tbl, strings.NewReader(src)); err != nil {
		t.Fatalf("FileIn: %v", err)
	}
	cls, err := tbl.WellKnownClass("Box")
	if err != nil {
		t.Fatalf("WellKnownClass(Box): %v", err)
	}
	for _, sel := range []string{"contents", "contents:"} {
		sym, err := tbl.NewSymbol(sel)
		if err != nil {
			t.Fatalf("NewSymbol(%q): %v", sel, err)
		}
		if _, found, err := tbl.MethodLookup(cls, sym); err != nil || !found {
			t.Fatalf("MethodLookup(%q) = found=%v, err=%v, want found", sel, found, err)
		}
	}
}

func TestFileInSkipsMethodThatFailsToCompile(t *testing.T) {
	tbl := bootTable(t)
	src := `Class Broken Object
Methods Broken
bad
	^ totallyUndeclaredGlobal
|good
	^ 1
]
`
	if err := FileIn(tbl, strings.NewReader(src)); err != nil {
		t.Fatalf("FileIn: %v", err)
	}
	cls, err := tbl.WellKnownClass("Broken")
	if err != nil {
		t.Fatalf("WellKnownClass(Broken): %v", err)
	}
	goodSym, err := tbl.NewSymbol("good")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	if _, found, err := tbl.MethodLookup(cls, goodSym); err != nil || !found {
		t.Fatalf("good method should have installed despite bad's failure: found=%v err=%v", found, err)
	}
	badSym, err := tbl.NewSymbol("bad")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	if _, found, _ := tbl.MethodLookup(cls, badSym); found {
		t.Fatalf("bad method should not have installed")
	}
}

func mustBytes(t *testing.T, tbl *object.Table, r object.Ref) []byte {
	t.Helper()
	b, err := tbl.Bytes(r)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return b
}
