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
	"fmt"

	"github.com/smalltalk-go/lst/object"
)

// Primitives is satisfied by the primitive package's table. interp
// calls into it for every DoPrimitive number it doesn't fast-path
// itself; the interface (rather than a direct import) keeps primitive
// the only package that depends on interp, not the reverse.
type Primitives interface {
	Invoke(vm *VM, num int, args []object.Ref) (object.Ref, bool)
}

// VM bundles the object table, inline method cache, and the watch
// toggle into a single value rather than scattered package-level
// globals.
type VM struct {
	Tbl   *object.Table
	Prims Primitives

	cache    [CacheSize]cacheEntry
	Watching bool

	blockClass object.Ref
}

// New builds a VM over an already-bootstrapped table.
func New(tbl *object.Table) *VM {
	return &VM{Tbl: tbl}
}

func (vm *VM) blockClassRef() object.Ref {
	if vm.blockClass == object.Nil {
		vm.blockClass, _ = vm.Tbl.WellKnownClass("Block")
	}
	return vm.blockClass
}

// classOf returns the class a message send should look methods up
// against: the Integer class for a tagged small integer, otherwise
// the receiver's stored class field.
func (vm *VM) classOf(r object.Ref) (object.Ref, error) {
	if r.IsSmallInt() {
		return vm.Tbl.WellKnownClass("Integer")
	}
	return vm.Tbl.Class(r)
}

// execState is the live register set the fetch/decode loop operates
// on: the process stack array and top, the current frame's
// linkPointer, and the decoded method/context/bytecode-offset that
// loadLinkageBlock refreshes on every frame transition.
type execState struct {
	vm    *VM
	proc  object.Ref
	stack object.Ref // the process's backing Array
	top   int        // 1-based index of the topmost occupied stack slot

	linkPointer      int
	context          object.Ref // nil: frame lives on the stack; else a reified Context
	frameReturnPoint int        // 1-based index of arg0 (only meaningful when context == nil)
	method           object.Ref
	byteOffset       int
	code             []byte
	literals         object.Ref

	// pendingReturnPoint is the transient argument base computed by the
	// most recent MarkArguments bytecode: where the about-to-be-sent
	// message's receiver sits. It is distinct from frameReturnPoint,
	// which only changes on a frame transition.
	pendingReturnPoint int
}

// Execute runs proc for up to maxSteps bytecode-level steps: it
// returns true if the process is still runnable (the
// time slice expired with frames remaining) or false if the
// outermost frame returned. State is read from and written back to
// the Process object around the call, so a suspended process can be
// resumed by a later Execute call.
func (vm *VM) Execute(proc object.Ref, maxSteps int) (stillRunning bool, err error) {
	s, err := vm.loadProcess(proc)
	if err != nil {
		return false, err
	}
	timeSlice := maxSteps

	for {
		if err := s.loadLinkageBlock(); err != nil {
			return false, err
		}
		if err := s.loadMethodInfo(); err != nil {
			return false, err
		}
		done, running, err := s.runTight(&timeSlice)
		if err != nil {
			return false, err
		}
		if done {
			if running {
				if err := s.set(s.linkPointer+ofstByteOffset, object.NewSmallInt(int64(s.byteOffset))); err != nil {
					return false, err
				}
			}
			return running, vm.saveProcess(s)
		}
		// a frame transition occurred (send, return, or context
		// reification); loop back and reload linkage state.
	}
}

func (vm *VM) loadProcess(proc object.Ref) (*execState, error) {
	stack, err := vm.Tbl.Field(proc, processStack)
	if err != nil {
		return nil, err
	}
	topRef, err := vm.Tbl.Field(proc, processStackTop)
	if err != nil {
		return nil, err
	}
	linkRef, err := vm.Tbl.Field(proc, processLinkPtr)
	if err != nil {
		return nil, err
	}
	return &execState{
		vm:          vm,
		proc:        proc,
		stack:       stack,
		top:         int(topRef.SmallInt()),
		linkPointer: int(linkRef.SmallInt()),
	}, nil
}

func (vm *VM) saveProcess(s *execState) error {
	if err := vm.Tbl.SetField(s.proc, processStack, s.stack); err != nil {
		return err
	}
	if err := vm.Tbl.SetField(s.proc, processStackTop, object.NewSmallInt(int64(s.top))); err != nil {
		return err
	}
	return vm.Tbl.SetField(s.proc, processLinkPtr, object.NewSmallInt(int64(s.linkPointer)))
}

// --- process-stack access (1-based) ---

func (s *execState) at(n int) (object.Ref, error) {
	return s.vm.Tbl.Field(s.stack, n-1)
}

func (s *execState) set(n int, v object.Ref) error {
	return s.vm.Tbl.SetField(s.stack, n-1, v)
}

func (s *execState) push(v object.Ref) error {
	if err := s.growIfNeeded(1); err != nil {
		return err
	}
	s.top++
	return s.set(s.top, v)
}

// pop returns the top of stack, overwriting its slot with nil first
// (matching the IPOP macro: "leaves x with excess reference count",
// i.e. the caller now owns the one reference that used to be the
// stack's).
func (s *execState) pop() (object.Ref, error) {
	v, err := s.at(s.top)
	if err != nil {
		return object.Nil, err
	}
	if err := s.set(s.top, object.Nil); err != nil {
		return object.Nil, err
	}
	s.top--
	return v, nil
}

func (s *execState) growIfNeeded(extra int) error {
	cap := s.vm.Tbl.FieldCount(s.stack)
	if s.top+extra <= cap {
		return nil
	}
	return s.grow(extra)
}

// grow reallocates the stack array with stackCushion slack beyond
// what was asked for, copying the live prefix across (growProcessStack).
func (s *execState) grow(extra int) error {
	toadd := extra + stackCushion
	oldCap := s.vm.Tbl.FieldCount(s.stack)
	newArr, err := s.vm.Tbl.NewArray(oldCap + toadd)
	if err != nil {
		return err
	}
	for i := 1; i <= s.top; i++ {
		v, err := s.at(i)
		if err != nil {
			return err
		}
		if err := s.vm.Tbl.SetField(newArr, i-1, v); err != nil {
			return err
		}
	}
	s.stack = newArr
	return nil
}

// loadLinkageBlock re-reads the five-slot linkage header at
// linkPointer, resolving whether this frame's arguments/temporaries
// live on the flat stack or inside a reified Context.
func (s *execState) loadLinkageBlock() error {
	ctx, err := s.at(s.linkPointer + ofstContext)
	if err != nil {
		return err
	}
	rp, err := s.at(s.linkPointer + ofstReturnPt)
	if err != nil {
		return err
	}
	s.context = ctx
	s.frameReturnPoint = int(rp.SmallInt())

	if ctx == object.Nil {
		m, err := s.at(s.linkPointer + ofstMethod)
		if err != nil {
			return err
		}
		s.method = m
	} else {
		m, err := s.vm.Tbl.Field(ctx, contextMethod)
		if err != nil {
			return err
		}
		s.method = m
	}

	bo, err := s.at(s.linkPointer + ofstByteOffset)
	if err != nil {
		return err
	}
	s.byteOffset = int(bo.SmallInt())
	return nil
}

func (s *execState) loadMethodInfo() error {
	lits, err := s.vm.Tbl.Field(s.method, methodLiterals)
	if err != nil {
		return err
	}
	s.literals = lits
	codeRef, err := s.vm.Tbl.Field(s.method, methodBytecodes)
	if err != nil {
		return err
	}
	code, err := s.vm.Tbl.Bytes(codeRef)
	if err != nil {
		return err
	}
	s.code = code
	return nil
}

// --- frame-relative accessors ---

func (s *execState) argAt(n int) (object.Ref, error) {
	if s.context == object.Nil {
		return s.at(s.frameReturnPoint + n)
	}
	args, err := s.vm.Tbl.Field(s.context, contextArgs)
	if err != nil {
		return object.Nil, err
	}
	return s.vm.Tbl.Field(args, n)
}

func (s *execState) argAtPut(n int, v object.Ref) error {
	if s.context == object.Nil {
		return s.set(s.frameReturnPoint+n, v)
	}
	args, err := s.vm.Tbl.Field(s.context, contextArgs)
	if err != nil {
		return err
	}
	return s.vm.Tbl.SetField(args, n, v)
}

func (s *execState) tempAt(n int) (object.Ref, error) {
	if s.context == object.Nil {
		return s.at(s.linkPointer + linkageSize + n)
	}
	temps, err := s.vm.Tbl.Field(s.context, contextTemps)
	if err != nil {
		return object.Nil, err
	}
	return s.vm.Tbl.Field(temps, n)
}

func (s *execState) tempAtPut(n int, v object.Ref) error {
	if s.context == object.Nil {
		return s.set(s.linkPointer+linkageSize+n, v)
	}
	temps, err := s.vm.Tbl.Field(s.context, contextTemps)
	if err != nil {
		return err
	}
	return s.vm.Tbl.SetField(temps, n, v)
}

func (s *execState) literalAt(n int) (object.Ref, error) {
	return s.vm.Tbl.Field(s.literals, n)
}

func (s *execState) nextByte() byte {
	b := s.code[s.byteOffset-1]
	s.byteOffset++
	return b
}

func errUnreachable(what string) error {
	return fmt.Errorf("interp: unreachable interpreter state: %s", what)
}
