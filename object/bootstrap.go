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

package object

// Bootstrap builds the hand-wired initial world that precedes any
// Smalltalk source being filed in: the symbols dictionary, nil/true/
// false, and the core classes (Object, Class, Integer, String, Symbol,
// Char, Float, Array, ByteArray, Block, Context, Method, Process,
// Dictionary, Link, True, False, UndefinedObject). This mirrors initial.c in the
// original sources, expressed as Go construction instead of parsed
// Smalltalk, since no method text exists yet to build these shapes.
type bootstrapper struct {
	t       *Table
	pending []pendingPatch
}

type pendingPatch struct {
	ref       Ref
	className string
}

func Bootstrap(t *Table) error {
	b := &bootstrapper{t: t}
	return b.run()
}

// rawSymbol interns s without going through NewSymbol (which needs the
// Symbol class to already be resolvable). Its class field is patched to
// Symbol once that class exists.
func (b *bootstrapper) rawSymbol(s string) (Ref, error) {
	t := b.t
	h := additiveHash(s)
	if t.Symbols != Nil {
		if existing, ok, err := t.hashEach(t.Symbols, h, func(k Ref) bool {
			bs, err := t.Bytes(k)
			return err == nil && string(bs) == s
		}); err == nil && ok {
			return existing, nil
		}
	}
	r, err := t.AllocBytes(Nil, len(s))
	if err != nil {
		return Nil, err
	}
	bs, _ := t.Bytes(r)
	copy(bs, s)
	if t.Symbols != Nil {
		if err := t.dictPut(t.Symbols, r, r, h); err != nil {
			return Nil, err
		}
	}
	b.pending = append(b.pending, pendingPatch{r, "Symbol"})
	return r, nil
}

func (b *bootstrapper) rawArray(n int) (Ref, error) {
	r, err := b.t.AllocObject(Nil, n)
	if err != nil {
		return Nil, err
	}
	b.pending = append(b.pending, pendingPatch{r, "Array"})
	return r, nil
}

func (b *bootstrapper) rawDict(buckets int) (Ref, error) {
	t := b.t
	d, err := t.AllocObject(Nil, 1)
	if err != nil {
		return Nil, err
	}
	b.pending = append(b.pending, pendingPatch{d, "Dictionary"})
	arr, err := b.rawArray(buckets * 3)
	if err != nil {
		return Nil, err
	}
	t.SetField(d, 0, arr)
	return d, nil
}

func (b *bootstrapper) rawClass(name string, instSize int, super Ref) (Ref, error) {
	t := b.t
	cls, err := t.AllocObject(Nil, 5)
	if err != nil {
		return Nil, err
	}
	b.pending = append(b.pending, pendingPatch{cls, "Class"})
	sym, err := b.rawSymbol(name)
	if err != nil {
		return Nil, err
	}
	t.SetField(cls, 0, sym)
	t.SetField(cls, 1, NewSmallInt(int64(instSize)))
	md, err := b.rawDict(39)
	if err != nil {
		return Nil, err
	}
	t.SetField(cls, 2, md)
	t.SetField(cls, 3, super)
	ivars, err := b.rawArray(0)
	if err != nil {
		return Nil, err
	}
	t.SetField(cls, 4, ivars)
	if err := t.dictPut(t.Symbols, sym, cls, additiveHash(name)); err != nil {
		return Nil, err
	}
	t.classCache[name] = cls
	return cls, nil
}

func (b *bootstrapper) run() error {
	t := b.t

	// The symbols dictionary itself: 53 buckets * 3 = 159 slots.
	arr, err := t.AllocObject(Nil, 159)
	if err != nil {
		return err
	}
	dict, err := t.AllocObject(Nil, 1)
	if err != nil {
		return err
	}
	t.SetField(dict, 0, arr)
	t.Symbols = dict
	t.incRef(dict)
	b.pending = append(b.pending, pendingPatch{arr, "Array"}, pendingPatch{dict, "Dictionary"})

	object, err := b.rawClass("Object", 0, Nil)
	if err != nil {
		return err
	}
	if _, err := b.rawClass("Class", 5, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Integer", 0, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Symbol", 0, object); err != nil {
		return err
	}
	if _, err := b.rawClass("String", 0, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Char", 1, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Float", 1, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Array", 0, object); err != nil {
		return err
	}
	if _, err := b.rawClass("ByteArray", 0, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Link", 3, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Dictionary", 1, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Block", 4, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Context", 4, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Method", 8, object); err != nil {
		return err
	}
	if _, err := b.rawClass("Process", 3, object); err != nil {
		return err
	}
	undef, err := b.rawClass("UndefinedObject", 0, object)
	if err != nil {
		return err
	}
	trueCls, err := b.rawClass("True", 0, object)
	if err != nil {
		return err
	}
	falseCls, err := b.rawClass("False", 0, object)
	if err != nil {
		return err
	}

	// Patch every bootstrap-time allocation's class field now that the
	// named classes exist.
	for _, p := range b.pending {
		target, ok := t.classCache[p.className]
		if !ok {
			continue
		}
		t.setClass(p.ref, target)
	}

	// nil is slot 0; its class is UndefinedObject.
	nilSlot, err := t.slot(Nil)
	if err == nil {
		nilSlot.Class = undef
	}
	t.incRef(undef)

	trueRef, err := t.AllocObject(trueCls, 0)
	if err != nil {
		return err
	}
	falseRef, err := t.AllocObject(falseCls, 0)
	if err != nil {
		return err
	}
	if err := t.InternGlobal("true", trueRef); err != nil {
		return err
	}
	if err := t.InternGlobal("false", falseRef); err != nil {
		return err
	}
	t.True, t.False = trueRef, falseRef

	return t.InitCommonSymbols()
}
