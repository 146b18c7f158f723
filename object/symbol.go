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

// additiveHash is a simple additive hash over a string's UTF-8 bytes.
func additiveHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h += uint32(s[i])
	}
	return h
}

// dictBuckets reports the number of hash buckets backing dict, derived
// from its backing array's length (always a multiple of 3: key, value,
// chain-link).
func (t *Table) dictBuckets(dict Ref) (Ref, int, error) {
	arr, err := t.Field(dict, 0)
	if err != nil {
		return Nil, 0, err
	}
	n := t.FieldCount(arr)
	return arr, n / 3, nil
}

// hashEach enumerates the bucket selected by hash (the inline triple
// plus its external chain) and returns the first value for which
// pred(key) holds.
func (t *Table) hashEach(dict Ref, hash uint32, pred func(key Ref) bool) (Ref, bool, error) {
	arr, buckets, err := t.dictBuckets(dict)
	if err != nil || buckets == 0 {
		return Nil, false, err
	}
	base := int(hash%uint32(buckets)) * 3
	key, err := t.Field(arr, base)
	if err != nil {
		return Nil, false, err
	}
	if key != Nil && pred(key) {
		val, _ := t.Field(arr, base+1)
		return val, true, nil
	}
	link, _ := t.Field(arr, base+2)
	for link != Nil {
		k, err := t.Field(link, 0)
		if err != nil {
			return Nil, false, err
		}
		if pred(k) {
			v, _ := t.Field(link, 1)
			return v, true, nil
		}
		link, _ = t.Field(link, 2)
	}
	return Nil, false, nil
}

// dictGet looks up key (compared by reference identity, matching
// interned symbols) in dict.
func (t *Table) dictGet(dict, key Ref, hash uint32) (Ref, bool, error) {
	return t.hashEach(dict, hash, func(k Ref) bool { return k == key })
}

// dictPut installs key -> value in dict, inserting into the primary
// triple if it is empty or already holds key, else prepending a Link
// onto the bucket's chain.
func (t *Table) dictPut(dict, key, value Ref, hash uint32) error {
	arr, buckets, err := t.dictBuckets(dict)
	if err != nil || buckets == 0 {
		return err
	}
	base := int(hash%uint32(buckets)) * 3
	cur, err := t.Field(arr, base)
	if err != nil {
		return err
	}
	if cur == Nil || cur == key {
		t.SetField(arr, base, key)
		t.SetField(arr, base+1, value)
		return nil
	}
	head, _ := t.Field(arr, base+2)
	link, err := t.NewLink(key, value)
	if err != nil {
		return err
	}
	t.SetField(link, 2, head)
	t.SetField(arr, base+2, link)
	return nil
}

// NewSymbol interns s in the root symbols dictionary, returning the
// existing reference if present.
func (t *Table) NewSymbol(s string) (Ref, error) {
	h := additiveHash(s)
	if existing, ok, err := t.findSymbolByText(s, h); err != nil {
		return Nil, err
	} else if ok {
		return existing, nil
	}
	cls, _ := t.WellKnownClass("Symbol")
	r, err := t.AllocBytes(cls, len(s))
	if err != nil {
		return Nil, err
	}
	b, _ := t.Bytes(r)
	copy(b, s)
	if err := t.dictPut(t.Symbols, r, r, h); err != nil {
		return Nil, err
	}
	return r, nil
}

func (t *Table) findSymbolByText(s string, h uint32) (Ref, bool, error) {
	if t.Symbols == Nil {
		return Nil, false, nil
	}
	var found Ref
	_, ok, err := t.hashEach(t.Symbols, h, func(k Ref) bool {
		b, err := t.Bytes(k)
		if err == nil && string(b) == s {
			found = k
			return true
		}
		return false
	})
	return found, ok, err
}

// InternGlobal binds name to value in the symbols dictionary (used for
// classes and other globals reachable via #at:).
func (t *Table) InternGlobal(name string, value Ref) error {
	sym, err := t.NewSymbol(name)
	if err != nil {
		return err
	}
	return t.dictPut(t.Symbols, sym, value, additiveHash(name))
}

// LookupGlobal resolves name in the symbols dictionary.
func (t *Table) LookupGlobal(name string) (Ref, error) {
	h := additiveHash(name)
	sym, ok, err := t.findSymbolByText(name, h)
	if err != nil {
		return Nil, err
	}
	if !ok {
		return Nil, ErrBadIndex
	}
	v, ok, err := t.dictGet(t.Symbols, sym, h)
	if err != nil {
		return Nil, err
	}
	if !ok {
		return Nil, ErrBadIndex
	}
	return v, nil
}

// MethodLookup finds selector in class's method dictionary (walking only
// this class's own dictionary; superclass traversal is interp's job).
func (t *Table) MethodLookup(class, selector Ref) (Ref, bool, error) {
	md, err := t.Field(class, 2)
	if err != nil {
		return Nil, false, err
	}
	h := additiveHash(t.symbolText(selector))
	return t.dictGet(md, selector, h)
}

// InstallMethod binds selector to method in class's method dictionary.
func (t *Table) InstallMethod(class, selector, method Ref) error {
	md, err := t.Field(class, 2)
	if err != nil {
		return err
	}
	h := additiveHash(t.symbolText(selector))
	return t.dictPut(md, selector, method, h)
}

func (t *Table) symbolText(sym Ref) string {
	b, err := t.Bytes(sym)
	if err != nil {
		return ""
	}
	return string(b)
}

// SymbolHash exposes the additive hash of an interned symbol's text.
func (t *Table) SymbolHash(sym Ref) uint32 {
	return additiveHash(t.symbolText(sym))
}

// commonUnarySelectors and commonBinarySelectors fix the order in which
// InitCommonSymbols interns
// the selectors that the bytecode's unary/binary shortcuts (SendUnary,
// SendBinary) encode by small index rather than by literal-pool lookup.
// The order is part of the bytecode ABI: SendUnary 0 must always mean
// isNil, SendBinary 0 must always mean +, and so on.
var commonUnarySelectors = []string{
	"isNil", "notNil", "value", "new", "class", "size", "printString",
}

var commonBinarySelectors = []string{
	"+", "-", "*", "/", "=", "<", ">", "<=", ">=", "~=", "==",
}

// InitCommonSymbols interns the selector symbols used by the bytecode's
// unary/binary shortcuts. It must run once before any method referencing
// SendUnary/SendBinary is compiled or executed.
func (t *Table) InitCommonSymbols() error {
	for _, s := range commonUnarySelectors {
		sym, err := t.NewSymbol(s)
		if err != nil {
			return err
		}
		t.commonSymbols["unary:"+s] = sym
	}
	for _, s := range commonBinarySelectors {
		sym, err := t.NewSymbol(s)
		if err != nil {
			return err
		}
		t.commonSymbols["binary:"+s] = sym
	}
	return nil
}

// UnarySelector returns the interned symbol for the i'th common unary
// selector (the SendUnary bytecode's low nibble).
func (t *Table) UnarySelector(i int) (Ref, bool) {
	if i < 0 || i >= len(commonUnarySelectors) {
		return Nil, false
	}
	r, ok := t.commonSymbols["unary:"+commonUnarySelectors[i]]
	return r, ok
}

// UnarySelectorIndex returns the SendUnary low-nibble index for name, or
// -1 if it is not one of the common unary selectors.
func UnarySelectorIndex(name string) int {
	for i, s := range commonUnarySelectors {
		if s == name {
			return i
		}
	}
	return -1
}

// BinarySelector returns the interned symbol for the i'th common binary
// selector (the SendBinary bytecode's low nibble).
func (t *Table) BinarySelector(i int) (Ref, bool) {
	if i < 0 || i >= len(commonBinarySelectors) {
		return Nil, false
	}
	r, ok := t.commonSymbols["binary:"+commonBinarySelectors[i]]
	return r, ok
}

// BinarySelectorIndex returns the SendBinary low-nibble index for name,
// or -1 if it is not one of the common binary selectors.
func BinarySelectorIndex(name string) int {
	for i, s := range commonBinarySelectors {
		if s == name {
			return i
		}
	}
	return -1
}
