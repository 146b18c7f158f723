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

// Slot is one entry of the object table. Byte objects (Size < 0) own Bytes
// and never hold references; pointer objects (Size >= 0) own Mem. A free
// slot links to the next free slot through nextFree (nilLink = -1 ends
// the chain) and both Mem/Bytes are released.
type Slot struct {
	Class Ref
	Count uint32
	Size  int32 // >=0: len(Mem) pointer fields; <0: -Size raw bytes
	Mem   []Ref
	Bytes []byte

	free     bool
	nextFree int
}

const nilLink = -1

// Table is the fixed-capacity object memory: every other component
// reaches an object only by indexing through a Table.
type Table struct {
	Profile  Profile
	slots    []Slot
	freeHead int

	Symbols Ref // root dictionary; reaches every live persistent object
	ImageID string
	True    Ref
	False   Ref

	commonSymbols map[string]Ref
	classCache    map[string]Ref
}

// NewTable builds an empty table under the given profile, with slot 0
// reserved and permanently occupied by nil.
func NewTable(p Profile) *Table {
	t := &Table{
		Profile:       p,
		freeHead:      nilLink,
		commonSymbols: make(map[string]Ref),
		classCache:    make(map[string]Ref),
	}
	// slot 0 is nil: class nil, saturated refcount, zero size.
	t.slots = append(t.slots, Slot{Class: Nil, Count: p.CountMax()})
	return t
}

// Len reports the number of table slots in use (including free ones).
func (t *Table) Len() int { return len(t.slots) }

func (t *Table) slot(r Ref) (*Slot, error) {
	if !r.IsBoxed() {
		return nil, ErrBadIndex
	}
	i := r.Index()
	if i < 0 || i >= len(t.slots) || t.slots[i].free {
		return nil, ErrBadIndex
	}
	return &t.slots[i], nil
}

// Class returns the class reference of r: the tagged-integer class for
// small integers, or the slot's stored class field for boxed references.
func (t *Table) Class(r Ref) (Ref, error) {
	if r.IsSmallInt() {
		return t.WellKnownClass("Integer")
	}
	s, err := t.slot(r)
	if err != nil {
		return Nil, err
	}
	return s.Class, nil
}

// Size returns the slot's signed size field.
func (t *Table) Size(r Ref) (int32, error) {
	s, err := t.slot(r)
	if err != nil {
		return 0, err
	}
	return s.Size, nil
}

// IsBytes reports whether r is a byte object.
func (t *Table) IsBytes(r Ref) bool {
	s, err := t.slot(r)
	return err == nil && s.Size < 0
}

// allocate reserves a slot (reused from the free list or freshly
// appended), installing class c and a zero-initialized buffer of the
// declared shape. n is the field/byte count; negative classes are not
// meaningful here — callers pass the byte/pointer split via isBytes.
func (t *Table) allocate(c Ref, n int, isBytes bool) (Ref, error) {
	if n > t.Profile.MaxSize() {
		return Nil, ErrTooLarge
	}
	var idx int
	if t.freeHead != nilLink {
		idx = t.freeHead
		t.freeHead = t.slots[idx].nextFree
	} else {
		if len(t.slots) >= t.Profile.Capacity {
			return Nil, ErrOutOfSlots
		}
		idx = len(t.slots)
		t.slots = append(t.slots, Slot{})
	}
	sl := &t.slots[idx]
	*sl = Slot{Class: Nil, Count: 0}
	if isBytes {
		sl.Size = int32(-n)
		if n > 0 {
			sl.Bytes = make([]byte, n)
		}
	} else {
		sl.Size = int32(n)
		if n > 0 {
			sl.Mem = make([]Ref, n)
		}
	}
	ref := NewBoxedRef(idx)
	// installing the class reference goes through the refcounted store
	// so the class itself gains a referrer.
	if err := t.setClass(ref, c); err != nil {
		return Nil, err
	}
	return ref, nil
}

// AllocObject allocates a pointer object of n fields under class c.
func (t *Table) AllocObject(c Ref, n int) (Ref, error) {
	return t.allocate(c, n, false)
}

// AllocBytes allocates a byte object of n bytes under class c.
func (t *Table) AllocBytes(c Ref, n int) (Ref, error) {
	return t.allocate(c, n, true)
}

func (t *Table) setClass(obj, c Ref) error {
	s, err := t.slot(obj)
	if err != nil {
		return err
	}
	prev := s.Class
	s.Class = c
	if prev.IsBoxed() && prev != Nil {
		t.decRef(prev)
	}
	if c.IsBoxed() {
		t.incRef(c)
	}
	return nil
}

func (t *Table) incRef(r Ref) {
	if !r.IsBoxed() {
		return
	}
	s, err := t.slot(r)
	if err != nil {
		return
	}
	if s.Count == t.Profile.CountMax() {
		return // saturated: increment suppressed until reload
	}
	s.Count++
}

func (t *Table) decRef(r Ref) {
	if !r.IsBoxed() {
		return
	}
	s, err := t.slot(r)
	if err != nil {
		return
	}
	if s.Count == t.Profile.CountMax() {
		return // saturated: decrement suppressed
	}
	s.Count--
	if s.Count == 0 {
		t.reclaim(r)
	}
}

// reclaim releases a zero-count slot: every pointer field is
// decremented (byte objects are skipped, since they never hold
// references), the memory buffer is released, and the slot is pushed
// onto the free list.
func (t *Table) reclaim(r Ref) {
	idx := r.Index()
	s := &t.slots[idx]
	if s.Size >= 0 {
		for _, f := range s.Mem {
			t.decRef(f)
		}
	}
	cls := s.Class
	*s = Slot{free: true, nextFree: t.freeHead}
	t.freeHead = idx
	if cls.IsBoxed() {
		t.decRef(cls)
	}
}

// Field reads the i'th (0-based) pointer field of obj.
func (t *Table) Field(obj Ref, i int) (Ref, error) {
	s, err := t.slot(obj)
	if err != nil {
		return Nil, err
	}
	if s.Size < 0 || i < 0 || i >= len(s.Mem) {
		return Nil, ErrBadIndex
	}
	return s.Mem[i], nil
}

// SetField stores y into the i'th (0-based) pointer field of obj,
// applying the table's reference-count protocol: decrement any
// previous occupant, install y, increment y if it is an unsaturated
// boxed reference. Storing a tagged integer is inert beyond the
// decrement of whatever it replaces.
func (t *Table) SetField(obj Ref, i int, y Ref) error {
	s, err := t.slot(obj)
	if err != nil {
		return err
	}
	if s.Size < 0 || i < 0 || i >= len(s.Mem) {
		return ErrBadIndex
	}
	prev := s.Mem[i]
	s.Mem[i] = y
	if prev.IsBoxed() {
		t.decRef(prev)
	}
	if y.IsBoxed() {
		t.incRef(y)
	}
	return nil
}

// Bytes returns the raw byte storage of obj.
func (t *Table) Bytes(obj Ref) ([]byte, error) {
	s, err := t.slot(obj)
	if err != nil {
		return nil, err
	}
	if s.Size >= 0 {
		return nil, ErrBadIndex
	}
	return s.Bytes, nil
}

// FieldCount reports the number of pointer fields owned by obj.
func (t *Table) FieldCount(obj Ref) int {
	s, err := t.slot(obj)
	if err != nil || s.Size < 0 {
		return 0
	}
	return len(s.Mem)
}

// RefCount exposes the slot's live reference count, for tests and the
// mark-sweep recovery pass.
func (t *Table) RefCount(obj Ref) uint32 {
	s, err := t.slot(obj)
	if err != nil {
		return 0
	}
	return s.Count
}

// WellKnownClass resolves and caches a Class object by name, searching
// the symbols dictionary. Constructors call this instead of
// re-resolving a class reference on every allocation.
func (t *Table) WellKnownClass(name string) (Ref, error) {
	if r, ok := t.classCache[name]; ok {
		if _, err := t.slot(r); err == nil {
			return r, nil
		}
	}
	r, err := t.LookupGlobal(name)
	if err != nil {
		return Nil, err
	}
	t.classCache[name] = r
	return r, nil
}
