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
	"github.com/smalltalk-go/lst/object"
)

// dnuSelectorName and watchSelectorName are the fixed selectors a
// failed or watched send is rerouted to; both take the
// original selector symbol and an Array of the original arguments as
// their two keyword arguments.
const (
	dnuSelectorName   = "message:notRecognizedWithArguments:"
	watchSelectorName = "watchWith:"
)

// beginSend starts a message send: selector is the literal symbol
// being sent, returnPoint the 1-based stack position of the receiver
// (the value MarkArguments just computed). It either completes by
// pushing a new linkage header onto the stack (the caller must reload
// linkage state) or returns an error.
func (s *execState) beginSend(selector object.Ref, returnPoint int) error {
	receiver, err := s.at(returnPoint)
	if err != nil {
		return err
	}
	class, err := s.vm.classOf(receiver)
	if err != nil {
		return err
	}
	if class == s.vm.blockClassRef() {
		handled, err := s.tryBlockActivation(returnPoint)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	return s.beginSendFrom(selector, returnPoint, class)
}

// beginSendFrom runs the cache/lookup/dispatch pipeline against
// startClass, which is the receiver's own class for an ordinary send
// or the next class up the chain for a super-send.
func (s *execState) beginSendFrom(selector object.Ref, returnPoint int, startClass object.Ref) error {
	foundClass, method, ok := s.vm.cacheLookup(selector, startClass)
	if !ok {
		var err error
		foundClass, method, ok, err = s.vm.findMethod(selector, startClass)
		if err != nil {
			return err
		}
		if ok {
			s.vm.cacheStore(selector, startClass, foundClass, method)
		}
	}
	if !ok {
		return s.sendDoesNotUnderstand(selector, returnPoint, startClass)
	}
	if s.vm.Watching {
		watch, err := s.vm.Tbl.Field(method, methodWatch)
		if err != nil {
			return err
		}
		if watch != object.NewSmallInt(0) {
			return s.rerouteSpecialSend(watchSelectorName, selector, returnPoint, startClass, method)
		}
	}
	return s.buildFrame(returnPoint, method)
}

// findMethod walks class and its superclasses looking for selector,
// stopping at the first class whose own method dictionary holds it
// (MethodLookup only ever searches one class at a time).
func (vm *VM) findMethod(selector, class object.Ref) (foundClass, method object.Ref, ok bool, err error) {
	cur := class
	for cur != object.Nil {
		m, found, err := vm.Tbl.MethodLookup(cur, selector)
		if err != nil {
			return object.Nil, object.Nil, false, err
		}
		if found {
			return cur, m, true, nil
		}
		super, err := vm.Tbl.Field(cur, 3)
		if err != nil {
			return object.Nil, object.Nil, false, err
		}
		cur = super
	}
	return object.Nil, object.Nil, false, nil
}

// packArgsForMeta collects the argc arguments above returnPoint into a
// fresh Array and pops the whole call (receiver included) off the
// stack, leaving room for a replacement meta-send's own arguments.
func (s *execState) packArgsForMeta(returnPoint int) (object.Ref, error) {
	argCount := s.top - returnPoint
	args, err := s.vm.Tbl.CopyFrom(s.stack, returnPoint+1, argCount)
	if err != nil {
		return object.Nil, err
	}
	for s.top > returnPoint {
		if _, err := s.pop(); err != nil {
			return object.Nil, err
		}
	}
	return args, nil
}

// sendDoesNotUnderstand rewrites the failed call into
// [receiver, selector, argumentsArray] and retries as
// message:notRecognizedWithArguments:; a second failure to find a
// handler for that selector is fatal: failure is not allowed to
// recurse past one level.
func (s *execState) sendDoesNotUnderstand(selector object.Ref, returnPoint int, class object.Ref) error {
	return s.rerouteSpecialSend(dnuSelectorName, selector, returnPoint, class, object.Nil)
}

// rerouteSpecialSend repackages the pending call as
// [receiver, originalSelector, argumentsArray] and dispatches metaName
// in its place; fallback is run directly if metaName has no handler
// (used by the watch reroute, where an absent handler just means "run
// the method as originally resolved").
func (s *execState) rerouteSpecialSend(metaName string, selector object.Ref, returnPoint int, class object.Ref, fallback object.Ref) error {
	args, err := s.packArgsForMeta(returnPoint)
	if err != nil {
		return err
	}
	if err := s.push(selector); err != nil {
		return err
	}
	if err := s.push(args); err != nil {
		return err
	}
	metaSym, err := s.vm.Tbl.NewSymbol(metaName)
	if err != nil {
		return err
	}
	_, method, ok, err := s.vm.findMethod(metaSym, class)
	if err != nil {
		return err
	}
	if !ok {
		if fallback != object.Nil {
			return s.buildFrame(returnPoint, fallback)
		}
		return object.Fatalf("message not understood",
			"no handler for "+metaName+" on receiver's class", object.ErrCorruptImage)
	}
	return s.buildFrame(returnPoint, method)
}

// tryBlockActivation special-cases a send whose receiver is a Block
// instance: Block's method dictionary is and stays empty, so rather
// than ever reaching a cache miss, a send landing on argCount matching
// the block's own stored argument count is activated directly against
// the block's captured context. A mismatched argument count reports
// itself as unhandled so the normal pipeline's does-not-understand
// path reports the error.
func (s *execState) tryBlockActivation(returnPoint int) (bool, error) {
	block, err := s.at(returnPoint)
	if err != nil {
		return false, err
	}
	wantArgs := s.fieldSmallInt(block, blockArgumentCount)
	gotArgs := s.top - returnPoint
	if gotArgs != wantArgs {
		return false, nil
	}
	ctx, err := s.vm.Tbl.Field(block, blockContext)
	if err != nil {
		return false, err
	}
	argLoc := s.fieldSmallInt(block, blockArgumentLocation)
	bytePos := s.fieldSmallInt(block, blockBytecountPosition)
	temps, err := s.vm.Tbl.Field(ctx, contextTemps)
	if err != nil {
		return false, err
	}
	for i := 0; i < gotArgs; i++ {
		v, err := s.at(returnPoint + 1 + i)
		if err != nil {
			return false, err
		}
		if err := s.vm.Tbl.SetField(temps, argLoc+i, v); err != nil {
			return false, err
		}
	}
	for s.top >= returnPoint {
		if _, err := s.pop(); err != nil {
			return false, err
		}
	}
	if err := s.set(s.linkPointer+ofstByteOffset, object.NewSmallInt(int64(s.byteOffset))); err != nil {
		return false, err
	}
	ctxMethod, err := s.vm.Tbl.Field(ctx, contextMethod)
	if err != nil {
		return false, err
	}
	prevLink := s.linkPointer
	newLink := s.top + 1
	if err := s.push(object.NewSmallInt(int64(prevLink))); err != nil {
		return false, err
	}
	if err := s.push(ctx); err != nil {
		return false, err
	}
	if err := s.push(object.NewSmallInt(int64(returnPoint))); err != nil {
		return false, err
	}
	if err := s.push(ctxMethod); err != nil {
		return false, err
	}
	if err := s.push(object.NewSmallInt(int64(bytePos))); err != nil {
		return false, err
	}
	s.linkPointer = newLink
	return true, nil
}

// buildFrame saves the caller's resume point, grows the stack if the
// new method needs more room than remains, and writes a fresh linkage
// header (plus nil-initialized temporaries) for method, starting
// execution at its byte offset 1.
func (s *execState) buildFrame(returnPoint int, method object.Ref) error {
	if err := s.set(s.linkPointer+ofstByteOffset, object.NewSmallInt(int64(s.byteOffset))); err != nil {
		return err
	}
	tempSize := s.fieldSmallInt(method, methodTempSize)
	stackSize := s.fieldSmallInt(method, methodStackSize)
	if err := s.growIfNeeded(linkageSize + tempSize + stackSize); err != nil {
		return err
	}
	prevLink := s.linkPointer
	newLink := s.top + 1
	if err := s.push(object.NewSmallInt(int64(prevLink))); err != nil {
		return err
	}
	if err := s.push(object.Nil); err != nil {
		return err
	}
	if err := s.push(object.NewSmallInt(int64(returnPoint))); err != nil {
		return err
	}
	if err := s.push(method); err != nil {
		return err
	}
	if err := s.push(object.NewSmallInt(1)); err != nil {
		return err
	}
	for i := 0; i < tempSize; i++ {
		if err := s.push(object.Nil); err != nil {
			return err
		}
	}
	s.linkPointer = newLink
	return nil
}

func (s *execState) fieldSmallInt(obj object.Ref, idx int) int {
	v, err := s.vm.Tbl.Field(obj, idx)
	if err != nil {
		return 0
	}
	return int(v.SmallInt())
}

// doPrimitive implements the DoPrimitive bytecode: argc arguments
// (receiver included, where the call has one) sit on top of the
// stack. A handful of low primitive numbers are handled directly
// inline for speed; anything else falls through to the primitive
// package's table. A primitive that cannot apply (wrong argument
// shapes, unknown number) leaves nil as its result.
func (s *execState) doPrimitive(argc, primNum int) error {
	base := s.top - argc + 1
	args := make([]object.Ref, argc)
	for i := 0; i < argc; i++ {
		v, err := s.at(base + i)
		if err != nil {
			return err
		}
		args[i] = v
	}
	result, ok := s.fastPrimitive(primNum, args)
	if !ok && s.vm.Prims != nil {
		result, ok = s.vm.Prims.Invoke(s.vm, primNum, args)
	}
	if !ok {
		result = object.Nil
	}
	for s.top >= base {
		if _, err := s.pop(); err != nil {
			return err
		}
	}
	return s.push(result)
}

// fastPrimitive implements the primitive numbers interp.c inlines
// directly in its dispatch switch rather than routing through the
// generic primitive table: toggle watch mode, class-of, identity
// comparison, indexed access/store, set time slice, raw allocation,
// and global symbol value lookup.
func (s *execState) fastPrimitive(num int, args []object.Ref) (object.Ref, bool) {
	switch num {
	case 5: // toggle interpreter watch mode
		s.vm.Watching = !s.vm.Watching
		return args[0], true

	case 11: // class of
		cls, err := s.vm.classOf(args[0])
		if err != nil {
			return object.Nil, false
		}
		return cls, true

	case 21: // identity equals
		if args[0] == args[1] {
			return s.vm.Tbl.True, true
		}
		return s.vm.Tbl.False, true

	case 25: // basicAt:
		if len(args) < 2 || !args[1].IsSmallInt() {
			return object.Nil, false
		}
		i := int(args[1].SmallInt()) - 1
		if s.vm.Tbl.IsBytes(args[0]) {
			b, err := s.vm.Tbl.Bytes(args[0])
			if err != nil || i < 0 || i >= len(b) {
				return object.Nil, false
			}
			return object.NewSmallInt(int64(b[i])), true
		}
		v, err := s.vm.Tbl.Field(args[0], i)
		if err != nil {
			return object.Nil, false
		}
		return v, true

	case 31: // basicAt:put:
		if len(args) < 3 || !args[1].IsSmallInt() {
			return object.Nil, false
		}
		i := int(args[1].SmallInt()) - 1
		if s.vm.Tbl.IsBytes(args[0]) {
			b, err := s.vm.Tbl.Bytes(args[0])
			if err != nil || !args[2].IsSmallInt() || i < 0 || i >= len(b) {
				return object.Nil, false
			}
			b[i] = byte(args[2].SmallInt())
			return args[2], true
		}
		if err := s.vm.Tbl.SetField(args[0], i, args[2]); err != nil {
			return object.Nil, false
		}
		return args[2], true

	case 53: // set time slice size: the host driver owns maxSteps between
		// Execute calls, so this primitive is a recognized no-op that
		// simply echoes its argument back.
		return args[0], true

	case 58: // allocate a new instance of argc fields under a given class
		if len(args) < 2 || !args[1].IsSmallInt() {
			return object.Nil, false
		}
		r, err := s.vm.Tbl.AllocObject(args[0], int(args[1].SmallInt()))
		if err != nil {
			return object.Nil, false
		}
		return r, true

	case 87: // value of a global symbol
		b, err := s.vm.Tbl.Bytes(args[0])
		if err != nil {
			return object.Nil, false
		}
		v, err := s.vm.Tbl.LookupGlobal(string(b))
		if err != nil {
			return object.Nil, false
		}
		return v, true
	}
	return object.Nil, false
}
