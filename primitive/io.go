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

package primitive

import (
	"bufio"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/smalltalk-go/lst/compile"
	"github.com/smalltalk-go/lst/interp"
	"github.com/smalltalk-go/lst/object"
)

// maxFiles mirrors unixio.c's fixed MAXFILES file-descriptor table:
// the image addresses an open file by its small integer slot, not by
// the raw OS descriptor.
const maxFiles = 20

type fileSlot struct {
	fd     int
	reader *bufio.Reader
	isStd  bool
}

type fileTable struct {
	slots [maxFiles]*fileSlot
}

func newFileTable() *fileTable {
	t := &fileTable{}
	t.slots[0] = &fileSlot{fd: unix.Stdin, reader: bufio.NewReader(stdinReader{}), isStd: true}
	t.slots[1] = &fileSlot{fd: unix.Stdout, isStd: true}
	t.slots[2] = &fileSlot{fd: unix.Stderr, isStd: true}
	return t
}

// stdinReader adapts unix.Read on fd 0 to the io.Reader bufio.Reader
// needs for the line-oriented get-string primitive.
type stdinReader struct{}

func (stdinReader) Read(p []byte) (int, error) {
	n, err := unix.Read(unix.Stdin, p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (t *fileTable) freeSlot() (int, bool) {
	for i := 3; i < maxFiles; i++ {
		if t.slots[i] == nil {
			return i, true
		}
	}
	return 0, false
}

// invoke dispatches the already-offset-by-100 I/O primitive number,
// one case at a time: 0 open, 1 close, 2/3 file-size-or-filein (one
// case number shared between the two; filein is the one reachable
// from Smalltalk code, so that's what this table implements), 4
// get-character (unimplemented), 5 get-string, 8/9 print-no-return /
// print-string. Every other number, 7 included, reports a miss.
func (t *fileTable) invoke(vm *interp.VM, num int, args []object.Ref) (object.Ref, bool) {
	switch num {
	case 0:
		return t.open(vm, args)
	case 1:
		return t.close(vm, args)
	case 2, 3:
		return t.fileIn(vm, args)
	case 5:
		return t.getString(vm, args)
	case 8:
		return t.print(vm, args, false)
	case 9:
		return t.print(vm, args, true)
	}
	return object.Nil, false
}

func (t *fileTable) nameArg(vm *interp.VM, r object.Ref) (string, bool) {
	b, err := vm.Tbl.Bytes(r)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// open implements case 0: "stdin"/"stdout"/"stderr" resolve to the
// pre-opened standard slots; anything else is opened fresh and
// assigned the first free slot above 2.
func (t *fileTable) open(vm *interp.VM, args []object.Ref) (object.Ref, bool) {
	if len(args) < 1 {
		return object.Nil, false
	}
	name, ok := t.nameArg(vm, args[0])
	if !ok {
		return object.Nil, false
	}
	switch name {
	case "stdin":
		return object.NewSmallInt(0), true
	case "stdout":
		return object.NewSmallInt(1), true
	case "stderr":
		return object.NewSmallInt(2), true
	}
	mode := "r"
	if len(args) > 1 {
		if m, ok := t.nameArg(vm, args[1]); ok {
			mode = m
		}
	}
	flags := unix.O_RDONLY
	switch {
	case strings.HasPrefix(mode, "w"):
		flags = unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC
	case strings.HasPrefix(mode, "a"):
		flags = unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND
	}
	fd, err := unix.Open(name, flags, 0644)
	if err != nil {
		return object.Nil, false
	}
	slot, ok := t.freeSlot()
	if !ok {
		unix.Close(fd)
		return object.Nil, false
	}
	t.slots[slot] = &fileSlot{fd: fd}
	return object.NewSmallInt(int64(slot)), true
}

func (t *fileTable) resolve(args []object.Ref) (*fileSlot, int, bool) {
	if len(args) < 1 || !args[0].IsSmallInt() {
		return nil, 0, false
	}
	i := int(args[0].SmallInt())
	if i < 0 || i >= maxFiles || t.slots[i] == nil {
		return nil, 0, false
	}
	return t.slots[i], i, true
}

func (t *fileTable) close(vm *interp.VM, args []object.Ref) (object.Ref, bool) {
	slot, i, ok := t.resolve(args)
	if !ok || slot.isStd {
		return object.Nil, false
	}
	unix.Close(slot.fd)
	t.slots[i] = nil
	return vm.Tbl.True, true
}

// fileIn compiles and installs every class/method declaration in the
// named file, the Smalltalk-visible half of a shared
// file-size/fileIn primitive case.
func (t *fileTable) fileIn(vm *interp.VM, args []object.Ref) (object.Ref, bool) {
	slot, _, ok := t.resolve(args)
	if !ok {
		return object.Nil, false
	}
	f := os.NewFile(uintptr(slot.fd), "filein")
	if err := compile.FileIn(vm.Tbl, f); err != nil {
		return object.Nil, false
	}
	vm.ResetCache()
	return vm.Tbl.True, true
}

// getString implements case 5: read one line, stripping a trailing
// newline the way a line-buffered read loop does for stdin.
func (t *fileTable) getString(vm *interp.VM, args []object.Ref) (object.Ref, bool) {
	slot, _, ok := t.resolve(args)
	if !ok {
		return object.Nil, false
	}
	if slot.reader == nil {
		slot.reader = bufio.NewReader(os.NewFile(uintptr(slot.fd), "in"))
	}
	line, err := slot.reader.ReadString('\n')
	if err != nil && line == "" {
		return object.Nil, false
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	s, err := vm.Tbl.NewStString(line)
	if err != nil {
		return object.Nil, false
	}
	return s, true
}

// print implements cases 8/9: write a string to the given file slot,
// with or without a trailing newline.
func (t *fileTable) print(vm *interp.VM, args []object.Ref, newline bool) (object.Ref, bool) {
	if len(args) < 2 {
		return object.Nil, false
	}
	slot, _, ok := t.resolve(args)
	if !ok {
		return object.Nil, false
	}
	text, ok := t.nameArg(vm, args[1])
	if !ok {
		return object.Nil, false
	}
	if newline {
		text += "\n"
	}
	if _, err := unix.Write(slot.fd, []byte(text)); err != nil {
		return object.Nil, false
	}
	return vm.Tbl.True, true
}
