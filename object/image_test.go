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
	"bytes"
	"testing"
)

// reachableCount walks the same mark phase recoverMarkSweep uses and
// reports how many slots it visits, independent of Len (which also
// counts free slots never reused).
func reachableCount(t *testing.T, tbl *Table) int {
	t.Helper()
	visited := make(map[int]bool)
	var mark func(r Ref)
	mark = func(r Ref) {
		if !r.IsBoxed() {
			return
		}
		idx := r.Index()
		if visited[idx] {
			return
		}
		if _, err := tbl.slot(r); err != nil {
			return
		}
		visited[idx] = true
		s, _ := tbl.slot(r)
		if s.Size >= 0 {
			for _, f := range s.Mem {
				mark(f)
			}
		}
		mark(s.Class)
	}
	mark(Nil)
	mark(tbl.Symbols)
	return len(visited)
}

func TestImageRoundTripPreservesReachableGraph(t *testing.T) {
	tbl := bootTable(t)
	before := reachableCount(t, tbl)

	var buf bytes.Buffer
	stamp, err := SaveImage(&buf, tbl, SaveOptions{})
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if stamp == "" {
		t.Fatalf("SaveImage returned an empty stamp")
	}

	loaded, err := LoadImage(&buf, SmallMem)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if loaded.ImageID != stamp {
		t.Fatalf("loaded.ImageID = %q, want %q", loaded.ImageID, stamp)
	}
	if err := loaded.InitCommonSymbols(); err != nil {
		t.Fatalf("InitCommonSymbols: %v", err)
	}

	after := reachableCount(t, loaded)
	if after != before {
		t.Fatalf("reachable object count changed across round-trip: before=%d after=%d", before, after)
	}

	origInt, err := tbl.WellKnownClass("Integer")
	if err != nil {
		t.Fatalf("WellKnownClass(Integer) on original: %v", err)
	}
	origName, err := tbl.Field(origInt, 0)
	if err != nil {
		t.Fatalf("Field(origInt, 0): %v", err)
	}
	origText, err := tbl.Bytes(origName)
	if err != nil {
		t.Fatalf("Bytes(origName): %v", err)
	}

	loadedInt, err := loaded.WellKnownClass("Integer")
	if err != nil {
		t.Fatalf("WellKnownClass(Integer) on loaded: %v", err)
	}
	loadedName, err := loaded.Field(loadedInt, 0)
	if err != nil {
		t.Fatalf("Field(loadedInt, 0): %v", err)
	}
	loadedText, err := loaded.Bytes(loadedName)
	if err != nil {
		t.Fatalf("Bytes(loadedName): %v", err)
	}
	if string(loadedText) != string(origText) {
		t.Fatalf("Integer class name after round-trip = %q, want %q", loadedText, origText)
	}
}

func TestImageRoundTripZstdCompressed(t *testing.T) {
	tbl := bootTable(t)
	var buf bytes.Buffer
	if _, err := SaveImage(&buf, tbl, SaveOptions{Compress: true}); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	loaded, err := LoadImage(&buf, SmallMem)
	if err != nil {
		t.Fatalf("LoadImage (zstd): %v", err)
	}
	if _, err := loaded.WellKnownClass("Object"); err != nil {
		t.Fatalf("WellKnownClass(Object) on zstd-loaded image: %v", err)
	}
}

func TestLoadImageRejectsCorruptStream(t *testing.T) {
	tbl := bootTable(t)
	var buf bytes.Buffer
	if _, err := SaveImage(&buf, tbl, SaveOptions{}); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // flip a checksum byte
	if _, err := LoadImage(bytes.NewReader(raw), SmallMem); err == nil {
		t.Fatalf("LoadImage accepted a stream with a corrupted checksum")
	}
}
