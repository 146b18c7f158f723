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
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// imageMagic identifies this runtime's image stream, ahead of the
// spec's record format proper. It lets the loader distinguish a zstd
// -compressed image from a plain one and catch truncation before it
// ever reaches the record decoder.
var imageMagic = [4]byte{'L', 'S', 'T', '1'}

var zstdMagic = [4]byte{0x28, 0xB5, 0x2F, 0xFD}

// SaveOptions controls the optional wrapping this runtime adds around
// the spec's plain record stream.
type SaveOptions struct {
	Compress bool // wrap the stream in zstd
}

// SaveImage writes t in a fixed record format: a header
// carrying the symbols root reference, then one record per slot whose
// reference count is nonzero. A 4-byte magic, a UUID stamp, and a
// trailing 16-byte checksum (the first 16 bytes of a BLAKE2b-512
// digest) bracket the stream so LoadImage can
// detect corruption and tag the image for diagnostics.
func SaveImage(w io.Writer, t *Table, opts SaveOptions) (string, error) {
	var body bytes.Buffer
	if err := writeInt(&body, t.Profile.RefBytes, int64(t.Symbols)); err != nil {
		return "", err
	}
	for i := range t.slots {
		s := &t.slots[i]
		if s.free || s.Count == 0 {
			continue
		}
		if err := writeInt(&body, t.Profile.RefBytes, int64(i)); err != nil {
			return "", err
		}
		if err := writeInt(&body, t.Profile.RefBytes, int64(s.Class)); err != nil {
			return "", err
		}
		if err := writeInt(&body, t.Profile.SizeBytes, int64(s.Size)); err != nil {
			return "", err
		}
		if s.Size >= 0 {
			for _, f := range s.Mem {
				if err := writeInt(&body, t.Profile.RefBytes, int64(f)); err != nil {
					return "", err
				}
			}
		} else if len(s.Bytes) > 0 {
			body.Write(s.Bytes)
		}
	}

	id := uuid.New().String()
	var out bytes.Buffer
	out.Write(imageMagic[:])
	idBytes, _ := uuid.Parse(id)
	out.Write(idBytes[:])
	out.Write(body.Bytes())

	sum := blake2b.Sum512(out.Bytes())
	out.Write(sum[:16])

	bw := bufio.NewWriter(w)
	if opts.Compress {
		zw, err := zstd.NewWriter(bw)
		if err != nil {
			return "", err
		}
		if _, err := zw.Write(out.Bytes()); err != nil {
			return "", err
		}
		if err := zw.Close(); err != nil {
			return "", err
		}
	} else {
		if _, err := bw.Write(out.Bytes()); err != nil {
			return "", err
		}
	}
	return id, bw.Flush()
}

// LoadImage reads back an image written by SaveImage (transparently
// decompressing zstd-wrapped streams), verifies its checksum, applies
// the load-time mark-sweep recovery pass, and returns
// the reconstructed table.
func LoadImage(r io.Reader, p Profile) (*Table, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(4)
	if err == nil && bytes.Equal(peek, zstdMagic[:]) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, Fatalf("bad image", "zstd stream", err)
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	raw, err := io.ReadAll(br)
	if err != nil {
		return nil, Fatalf("bad image", "read failed", err)
	}
	if len(raw) < 4+16+16 || !bytes.Equal(raw[:4], imageMagic[:]) {
		return nil, Fatalf("bad image", "missing magic", ErrCorruptImage)
	}
	id := uuid.UUID(raw[4:20])
	body := raw[20 : len(raw)-16]
	wantSum := raw[len(raw)-16:]

	gotSum := blake2b.Sum512(raw[:len(raw)-16])
	if !bytes.Equal(gotSum[:16], wantSum) {
		return nil, Fatalf("bad image", "checksum mismatch", ErrCorruptImage)
	}

	rd := bytes.NewReader(body)
	t := &Table{
		Profile:       p,
		freeHead:      nilLink,
		commonSymbols: make(map[string]Ref),
		classCache:    make(map[string]Ref),
		ImageID:       id.String(),
	}
	rootRaw, err := readInt(rd, p.RefBytes)
	if err != nil {
		return nil, Fatalf("bad image", "missing header", ErrCorruptImage)
	}
	t.Symbols = Ref(rootRaw)

	for {
		idxRaw, err := readInt(rd, p.RefBytes)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, Fatalf("bad image", "truncated record", ErrCorruptImage)
		}
		classRaw, err := readInt(rd, p.RefBytes)
		if err != nil {
			return nil, Fatalf("bad image", "truncated record", ErrCorruptImage)
		}
		sizeRaw, err := readInt(rd, p.SizeBytes)
		if err != nil {
			return nil, Fatalf("bad image", "truncated record", ErrCorruptImage)
		}
		idx := int(idxRaw)
		for len(t.slots) <= idx {
			t.slots = append(t.slots, Slot{free: true, nextFree: nilLink})
		}
		s := &t.slots[idx]
		*s = Slot{Class: Ref(classRaw), Size: int32(sizeRaw)}
		if sizeRaw >= 0 {
			mem := make([]Ref, sizeRaw)
			for i := range mem {
				v, err := readInt(rd, p.RefBytes)
				if err != nil {
					return nil, Fatalf("bad image", "truncated pointer record", ErrCorruptImage)
				}
				mem[i] = Ref(v)
			}
			s.Mem = mem
		} else if sizeRaw < 0 {
			b := make([]byte, -sizeRaw)
			if _, err := io.ReadFull(rd, b); err != nil {
				return nil, Fatalf("bad image", "truncated byte record", ErrCorruptImage)
			}
			s.Bytes = b
		}
	}
	if len(t.slots) == 0 {
		t.slots = append(t.slots, Slot{})
	}
	t.recoverMarkSweep()
	return t, nil
}

func satInc(c, max uint32) uint32 {
	if c >= max {
		return max
	}
	return c + 1
}

// recoverMarkSweep is the single mark-sweep recovery pass run after
// loading an image: a recursive mark from symbols plus nil, incrementing every reached
// slot (descending into a slot's subfields only the first time it is
// reached), followed by freeing every object slot whose count is still
// zero, followed by a single ascending walk that rebuilds the free
// list.
func (t *Table) recoverMarkSweep() {
	visited := make([]bool, len(t.slots))
	var mark func(r Ref)
	mark = func(r Ref) {
		if !r.IsBoxed() {
			return
		}
		idx := r.Index()
		if idx < 0 || idx >= len(t.slots) || t.slots[idx].free {
			return
		}
		s := &t.slots[idx]
		s.Count = satInc(s.Count, t.Profile.CountMax())
		if visited[idx] {
			return
		}
		visited[idx] = true
		if s.Size >= 0 {
			for _, f := range s.Mem {
				mark(f)
			}
		}
		mark(s.Class)
	}
	mark(Nil)
	mark(t.Symbols)

	for i := range t.slots {
		if t.slots[i].free {
			continue
		}
		if t.slots[i].Count == 0 {
			t.slots[i] = Slot{free: true, nextFree: nilLink}
		}
	}

	t.freeHead = nilLink
	for i := len(t.slots) - 1; i >= 0; i-- {
		if t.slots[i].free {
			t.slots[i].nextFree = t.freeHead
			t.freeHead = i
		}
	}
}

func writeInt(w io.Writer, width int, v int64) error {
	switch width {
	case 1:
		return binary.Write(w, binary.LittleEndian, int8(v))
	case 2:
		return binary.Write(w, binary.LittleEndian, int16(v))
	case 4:
		return binary.Write(w, binary.LittleEndian, int32(v))
	default:
		return binary.Write(w, binary.LittleEndian, v)
	}
}

func readInt(r io.Reader, width int) (int64, error) {
	switch width {
	case 1:
		var v int8
		err := binary.Read(r, binary.LittleEndian, &v)
		return int64(v), err
	case 2:
		var v int16
		err := binary.Read(r, binary.LittleEndian, &v)
		return int64(v), err
	case 4:
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return int64(v), err
	default:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	}
}
