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

// Profile fixes the on-disk word widths and table capacity of an image.
// A reimplementation may choose either of the two canonical profiles;
// both must round-trip byte-exact within themselves. size_int stays
// 16 bits in both profiles, per the source's own convention.
type Profile struct {
	Name        string
	RefBytes    int // bytes per stored object reference
	CountBytes  int // bytes per saturating reference count
	SizeBytes   int // bytes per signed size field (always 2 in both profiles)
	Capacity    int // object table capacity
}

// SmallMem is the reference profile: 16-bit refs, 8-bit counts, 6500 slots.
var SmallMem = Profile{Name: "SMALL_MEM", RefBytes: 2, CountBytes: 1, SizeBytes: 2, Capacity: 6500}

// LargeMem widens references and counts for bigger images.
var LargeMem = Profile{Name: "LARGE_MEM", RefBytes: 4, CountBytes: 2, SizeBytes: 2, Capacity: 1 << 18}

// CountMax is the saturating maximum for this profile's reference count.
func (p Profile) CountMax() uint32 {
	return uint32(1)<<(8*p.CountBytes) - 1
}

// MaxSize is the largest |size| this profile's signed size field can hold.
func (p Profile) MaxSize() int {
	return 1<<(8*p.SizeBytes-1) - 1
}
