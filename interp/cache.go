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
	"encoding/binary"

	"github.com/dchest/siphash"
	"github.com/smalltalk-go/lst/object"
)

// CacheSize is the fixed method-cache bucket count.
const CacheSize = 211

// cacheEntry is one row of the inline method cache: the
// selector and receiver class the entry was filled for (the lookup
// key), plus the class the method was actually found on and the
// method itself.
type cacheEntry struct {
	selector    object.Ref
	lookupClass object.Ref
	foundClass  object.Ref
	method      object.Ref
}

// cacheKeyA/cacheKeyB are a fixed siphash key: the cache only needs to
// spread (selector, class) pairs across buckets within one run, not
// resist an adversary, so a constant key is adequate and keeps the
// cache deterministic across runs of the same image.
const cacheKeyA uint64 = 0x6c7374337220636b
const cacheKeyB uint64 = 0x6163686520686173

func cacheBucket(selector, class object.Ref) int {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(selector))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(class))
	h := siphash.Hash(cacheKeyA, cacheKeyB, buf[:])
	return int(h % CacheSize)
}

// cacheLookup probes the bucket for (selector, class), reporting a
// hit only on an exact match of both fields (a collision between two
// unrelated (selector, class) pairs is simply a miss, same as the
// original's direct-mapped cache).
func (vm *VM) cacheLookup(selector, class object.Ref) (foundClass, method object.Ref, ok bool) {
	e := &vm.cache[cacheBucket(selector, class)]
	if e.selector == selector && e.lookupClass == class {
		return e.foundClass, e.method, true
	}
	return object.Nil, object.Nil, false
}

func (vm *VM) cacheStore(selector, lookupClass, foundClass, method object.Ref) {
	vm.cache[cacheBucket(selector, lookupClass)] = cacheEntry{
		selector:    selector,
		lookupClass: lookupClass,
		foundClass:  foundClass,
		method:      method,
	}
}

// FlushCache clears the single bucket a (selector, class) pair would
// occupy, if that bucket holds this exact pair, so a stale entry cannot
// keep pointing at a superseded method. No primitive calls it; the
// file-in primitive uses ResetCache instead.
func (vm *VM) FlushCache(selector, class object.Ref) {
	e := &vm.cache[cacheBucket(selector, class)]
	if e.selector == selector && e.lookupClass == class {
		*e = cacheEntry{}
	}
}

// ResetCache drops every cached entry. A live file-in can replace
// methods on any number of classes at once, so the primitive table's
// file-in case clears the whole cache rather than tracking which
// (selector, class) pairs it touched.
func (vm *VM) ResetCache() {
	vm.cache = [CacheSize]cacheEntry{}
}
