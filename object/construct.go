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

import (
	"encoding/binary"
	"math"
)

// NewArray allocates a pointer object of n nil-initialized slots under
// class Array.
func (t *Table) NewArray(n int) (Ref, error) {
	c, err := t.WellKnownClass("Array")
	if err != nil {
		return Nil, err
	}
	return t.AllocObject(c, n)
}

// NewByteArray allocates a zeroed byte object of n bytes under class
// ByteArray.
func (t *Table) NewByteArray(n int) (Ref, error) {
	c, err := t.WellKnownClass("ByteArray")
	if err != nil {
		return Nil, err
	}
	return t.AllocBytes(c, n)
}

// NewStString allocates a String byte object initialized from s.
func (t *Table) NewStString(s string) (Ref, error) {
	c, err := t.WellKnownClass("String")
	if err != nil {
		return Nil, err
	}
	r, err := t.AllocBytes(c, len(s))
	if err != nil {
		return Nil, err
	}
	b, _ := t.Bytes(r)
	copy(b, s)
	return r, nil
}

// NewChar allocates a one-byte Char object.
func (t *Table) NewChar(c byte) (Ref, error) {
	cls, err := t.WellKnownClass("Char")
	if err != nil {
		return Nil, err
	}
	r, err := t.AllocBytes(cls, 1)
	if err != nil {
		return Nil, err
	}
	b, _ := t.Bytes(r)
	b[0] = c
	return r, nil
}

// NewFloat allocates an 8-byte, native-endian Float object.
func (t *Table) NewFloat(d float64) (Ref, error) {
	cls, err := t.WellKnownClass("Float")
	if err != nil {
		return Nil, err
	}
	r, err := t.AllocBytes(cls, 8)
	if err != nil {
		return Nil, err
	}
	b, _ := t.Bytes(r)
	binary.NativeEndian.PutUint64(b, math.Float64bits(d))
	return r, nil
}

// FloatValue decodes a Float object built by NewFloat.
func (t *Table) FloatValue(r Ref) (float64, error) {
	b, err := t.Bytes(r)
	if err != nil || len(b) < 8 {
		return 0, ErrBadIndex
	}
	return math.Float64frombits(binary.NativeEndian.Uint64(b)), nil
}

// NewLink allocates a 3-field (key, value, next) chain node used by
// dictionaries for external hash chaining.
func (t *Table) NewLink(k, v Ref) (Ref, error) {
	cls, err := t.WellKnownClass("Link")
	if err != nil {
		return Nil, err
	}
	r, err := t.AllocObject(cls, 3)
	if err != nil {
		return Nil, err
	}
	t.SetField(r, 0, k)
	t.SetField(r, 1, v)
	t.SetField(r, 2, Nil)
	return r, nil
}

// NewDictionary allocates a Dictionary with a fresh nBuckets-bucket,
// externally chained hash table as its sole field.
func (t *Table) NewDictionary(nBuckets int) (Ref, error) {
	cls, err := t.WellKnownClass("Dictionary")
	if err != nil {
		return Nil, err
	}
	d, err := t.AllocObject(cls, 1)
	if err != nil {
		return Nil, err
	}
	arr, err := t.NewArray(nBuckets * 3)
	if err != nil {
		return Nil, err
	}
	t.SetField(d, 0, arr)
	return d, nil
}

// NewClass allocates a Class object (size 5: name, instance-size,
// method-dictionary, superclass, instance-variable-names) and interns
// it under name in the symbols dictionary.
func (t *Table) NewClass(name string, instSize int, super Ref) (Ref, error) {
	// If "Class" is not yet interned, the class is installed with
	// class = nil and nothing patches it later; Bootstrap builds its
	// classes through its own rawClass path instead.
	metaclass, _ := t.WellKnownClass("Class")
	cls, err := t.AllocObject(metaclass, 5)
	if err != nil {
		return Nil, err
	}
	sym, err := t.NewSymbol(name)
	if err != nil {
		return Nil, err
	}
	t.SetField(cls, 0, sym)
	t.SetField(cls, 1, NewSmallInt(int64(instSize)))
	md, err := t.NewDictionary(39)
	if err != nil {
		return Nil, err
	}
	t.SetField(cls, 2, md)
	t.SetField(cls, 3, super)
	ivars, err := t.NewArray(0)
	if err != nil {
		return Nil, err
	}
	t.SetField(cls, 4, ivars)
	if err := t.InternGlobal(name, cls); err != nil {
		return Nil, err
	}
	t.classCache[name] = cls
	return cls, nil
}

// NewMethod allocates an empty Method object (size 8), to be populated
// by the compiler.
func (t *Table) NewMethod() (Ref, error) {
	cls, err := t.WellKnownClass("Method")
	if err != nil {
		return Nil, err
	}
	return t.AllocObject(cls, 8)
}

// NewBlock allocates an empty Block object (size 4).
func (t *Table) NewBlock() (Ref, error) {
	cls, err := t.WellKnownClass("Block")
	if err != nil {
		return Nil, err
	}
	return t.AllocObject(cls, 4)
}

// NewContext allocates a Context object (size 4) reifying a call frame:
// link, method, arguments, temporaries.
func (t *Table) NewContext(link, method, args, temps Ref) (Ref, error) {
	cls, err := t.WellKnownClass("Context")
	if err != nil {
		return Nil, err
	}
	r, err := t.AllocObject(cls, 4)
	if err != nil {
		return Nil, err
	}
	t.SetField(r, 0, link)
	t.SetField(r, 1, method)
	t.SetField(r, 2, args)
	t.SetField(r, 3, temps)
	return r, nil
}

// NewProcess allocates a Process object (size 3): stack array, stack-top
// integer, link-pointer integer.
func (t *Table) NewProcess(stackSize int) (Ref, error) {
	cls, err := t.WellKnownClass("Process")
	if err != nil {
		return Nil, err
	}
	r, err := t.AllocObject(cls, 3)
	if err != nil {
		return Nil, err
	}
	stack, err := t.NewArray(stackSize)
	if err != nil {
		return Nil, err
	}
	t.SetField(r, 0, stack)
	t.SetField(r, 1, NewSmallInt(0))
	t.SetField(r, 2, NewSmallInt(0))
	return r, nil
}

// CopyFrom produces a new Array of length n populated with n successive
// field reads of obj, starting at the 1-based offset start.
func (t *Table) CopyFrom(obj Ref, start, n int) (Ref, error) {
	r, err := t.NewArray(n)
	if err != nil {
		return Nil, err
	}
	for i := 0; i < n; i++ {
		v, err := t.Field(obj, start-1+i)
		if err != nil {
			return Nil, err
		}
		if err := t.SetField(r, i, v); err != nil {
			return Nil, err
		}
	}
	return r, nil
}
