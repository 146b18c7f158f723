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

	"github.com/smalltalk-go/lst/object"
)

// alwaysMiss is a Primitives stub that never resolves a primitive,
// forcing every DoPrimitive/SendBinary/SendUnary fast path to fall
// through to an ordinary dispatched send.
type alwaysMiss struct{}

func (alwaysMiss) Invoke(vm *VM, num int, args []object.Ref) (object.Ref, bool) {
	return object.Nil, false
}

func TestNilIsNilReturnsTrue(t *testing.T) {
	tbl := bootTable(t)
	vm := New(tbl)
	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	m := compileOn(t, tbl, obj, "check\n\t^ nil isNil")

	result := runRootMethod(t, vm, object.Nil, m)
	if result != tbl.True {
		t.Fatalf("nil isNil = %v, want the interned true object (%v)", result, tbl.True)
	}
}

func TestNilNotNilReturnsFalse(t *testing.T) {
	tbl := bootTable(t)
	vm := New(tbl)
	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	m := compileOn(t, tbl, obj, "check\n\t^ nil notNil")

	result := runRootMethod(t, vm, object.Nil, m)
	if result != tbl.False {
		t.Fatalf("nil notNil = %v, want the interned false object (%v)", result, tbl.False)
	}
}

// TestBinarySendFallsThroughOnPrimitiveMiss exercises the
// overflow-fallback mechanism at the interpreter level: a SendBinary
// fast path whose primitive invocation returns ok=false must dispatch
// an ordinary method send against the receiver's class rather than
// silently dropping the operation. A stub Primitives that always
// misses stands in for a genuine overflow (primitive's own arithmetic
// tests check the real overflow detection directly, at the edge of the
// 62-bit tagged range, where 16384+16384 does not overflow).
func TestBinarySendFallsThroughOnPrimitiveMiss(t *testing.T) {
	tbl := bootTable(t)
	vm := New(tbl)
	vm.Prims = alwaysMiss{}

	integer, err := tbl.WellKnownClass("Integer")
	if err != nil {
		t.Fatalf("WellKnownClass(Integer): %v", err)
	}
	plus := compileOn(t, tbl, integer, "+ aNumber\n\t^ 1111")
	plusSel, err := tbl.Field(plus, methodSelector)
	if err != nil {
		t.Fatalf("Field(selector): %v", err)
	}
	if err := tbl.InstallMethod(integer, plusSel, plus); err != nil {
		t.Fatalf("InstallMethod: %v", err)
	}

	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass(Object): %v", err)
	}
	run := compileOn(t, tbl, obj, "run\n\t^ 16384 + 16384")

	result := runRootMethod(t, vm, object.Nil, run)
	if !result.IsSmallInt() || result.SmallInt() != 1111 {
		t.Fatalf("16384 + 16384 (with a fast-path-missing Integer>>+) = %v, want the dispatched method's 1111", result)
	}
}

// TestMessageNotUnderstood exercises the does-not-understand
// path: a class with no methods of its own receives a selector no
// superclass handles either, and the send is rerouted to
// message:notRecognizedWithArguments: with the original selector
// symbol and an Array of the original (non-receiver) arguments.
// Foo's instance is built directly via AllocObject rather than a real
// "Foo new" send: the bootstrapped table carries no kernel method
// bodies (Object>>new is ordinarily supplied by filing in the kernel
// sources, out of scope for this unit test), so there is no #new to
// send in the first place.
func TestMessageNotUnderstood(t *testing.T) {
	tbl := bootTable(t)
	vm := New(tbl)

	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass(Object): %v", err)
	}
	foo, err := tbl.NewClass("Foo", 0, obj)
	if err != nil {
		t.Fatalf("NewClass(Foo): %v", err)
	}
	dnu := compileOn(t, tbl, obj, "message: aSelector notRecognizedWithArguments: anArgs\n\t^ aSelector")
	dnuSel, err := tbl.Field(dnu, methodSelector)
	if err != nil {
		t.Fatalf("Field(selector): %v", err)
	}
	if err := tbl.InstallMethod(obj, dnuSel, dnu); err != nil {
		t.Fatalf("InstallMethod: %v", err)
	}

	aFoo, err := tbl.AllocObject(foo, 0)
	if err != nil {
		t.Fatalf("AllocObject(Foo): %v", err)
	}
	run := compileOn(t, tbl, obj, "run\n\t^ self bar")

	result := runRootMethod(t, vm, aFoo, run)
	resultBytes, err := tbl.Bytes(result)
	if err != nil {
		t.Fatalf("the does-not-understand handler's return value isn't a symbol: %v", err)
	}
	if string(resultBytes) != "bar" {
		t.Fatalf("message:notRecognizedWithArguments: saw selector %q, want %q", resultBytes, "bar")
	}
}

func TestCacheStoreLookupAndFlush(t *testing.T) {
	tbl := bootTable(t)
	vm := New(tbl)

	sel, err := tbl.NewSymbol("frobnicate")
	if err != nil {
		t.Fatalf("NewSymbol: %v", err)
	}
	class, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	method, err := tbl.NewMethod()
	if err != nil {
		t.Fatalf("NewMethod: %v", err)
	}

	if _, _, ok := vm.cacheLookup(sel, class); ok {
		t.Fatalf("cacheLookup hit before any cacheStore")
	}
	vm.cacheStore(sel, class, class, method)
	foundClass, foundMethod, ok := vm.cacheLookup(sel, class)
	if !ok || foundClass != class || foundMethod != method {
		t.Fatalf("cacheLookup after store = (%v, %v, %v), want (%v, %v, true)", foundClass, foundMethod, ok, class, method)
	}

	// Cache flush: once the bucket is explicitly flushed, the entry
	// stored above must no longer be reachable.
	vm.FlushCache(sel, class)
	if _, _, ok := vm.cacheLookup(sel, class); ok {
		t.Fatalf("cacheLookup hit after FlushCache")
	}
}

func TestResetCacheClearsEveryBucket(t *testing.T) {
	tbl := bootTable(t)
	vm := New(tbl)

	class, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	method, err := tbl.NewMethod()
	if err != nil {
		t.Fatalf("NewMethod: %v", err)
	}
	for _, name := range []string{"alpha", "beta", "gamma"} {
		sel, err := tbl.NewSymbol(name)
		if err != nil {
			t.Fatalf("NewSymbol(%q): %v", name, err)
		}
		vm.cacheStore(sel, class, class, method)
	}

	vm.ResetCache()

	for _, name := range []string{"alpha", "beta", "gamma"} {
		sel, err := tbl.NewSymbol(name)
		if err != nil {
			t.Fatalf("NewSymbol(%q): %v", name, err)
		}
		if _, _, ok := vm.cacheLookup(sel, class); ok {
			t.Fatalf("cacheLookup(%q) hit after ResetCache", name)
		}
	}
}

// TestSendRepopulatesCacheAfterFlush is the full-pipeline version of
// the cache-flush test: a real send populates the cache, FlushCache
// drops that one bucket, and the very next identical send still resolves
// correctly (by redoing the superclass-chain lookup and repopulating
// the cache), proving the flush doesn't strand the dispatcher.
func TestSendRepopulatesCacheAfterFlush(t *testing.T) {
	tbl := bootTable(t)
	vm := New(tbl)

	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		t.Fatalf("WellKnownClass: %v", err)
	}
	greet := compileOn(t, tbl, obj, "greet\n\t^ 42")
	greetSel, err := tbl.Field(greet, methodSelector)
	if err != nil {
		t.Fatalf("Field(selector): %v", err)
	}
	if err := tbl.InstallMethod(obj, greetSel, greet); err != nil {
		t.Fatalf("InstallMethod: %v", err)
	}

	recv, err := tbl.AllocObject(obj, 0)
	if err != nil {
		t.Fatalf("AllocObject: %v", err)
	}
	run := compileOn(t, tbl, obj, "run\n\t^ self greet")

	if result := runRootMethod(t, vm, recv, run); !result.IsSmallInt() || result.SmallInt() != 42 {
		t.Fatalf("first send result = %v, want 42", result)
	}
	if _, _, ok := vm.cacheLookup(greetSel, obj); !ok {
		t.Fatalf("cache was not populated by the first send")
	}

	vm.FlushCache(greetSel, obj)
	if result := runRootMethod(t, vm, recv, run); !result.IsSmallInt() || result.SmallInt() != 42 {
		t.Fatalf("send after FlushCache result = %v, want 42", result)
	}
}
