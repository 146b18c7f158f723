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
	"strings"

	"github.com/smalltalk-go/lst/compile"
	"github.com/smalltalk-go/lst/object"
)

// runTight is the fetch/decode/dispatch loop proper: a
// "read a byte, split into nibbles, dispatch" loop, decrementing
// timeSlice once per bytecode and yielding back to Execute whenever a
// send, return, or thisContext reification changes which frame is
// live.
func (s *execState) runTight(timeSlice *int) (done bool, running bool, err error) {
	for {
		*timeSlice--
		if *timeSlice <= 0 {
			return true, true, nil
		}

		b := s.nextByte()
		high := compile.Op(b >> 4)
		low := int(b & 0x0F)
		if high == compile.OpExtended {
			high = compile.Op(low)
			low = int(s.nextByte())
		}

		switch high {
		case compile.OpPushInstance:
			recv, err := s.argAt(0)
			if err != nil {
				return false, false, err
			}
			v, err := s.vm.Tbl.Field(recv, low)
			if err != nil {
				return false, false, err
			}
			if err := s.push(v); err != nil {
				return false, false, err
			}

		case compile.OpPushArgument:
			v, err := s.argAt(low)
			if err != nil {
				return false, false, err
			}
			if err := s.push(v); err != nil {
				return false, false, err
			}

		case compile.OpPushTemporary:
			v, err := s.tempAt(low)
			if err != nil {
				return false, false, err
			}
			if err := s.push(v); err != nil {
				return false, false, err
			}

		case compile.OpPushLiteral:
			v, err := s.literalAt(low)
			if err != nil {
				return false, false, err
			}
			if err := s.push(v); err != nil {
				return false, false, err
			}

		case compile.OpPushConstant:
			t, err := s.pushConstant(low)
			if err != nil {
				return false, false, err
			}
			if t {
				// thisContext was reified for the first time: the
				// outer loop must reload linkage state for us, since
				// loadLinkageBlock will now see a non-nil context.
				return false, false, nil
			}

		case compile.OpAssignInstance:
			recv, err := s.argAt(0)
			if err != nil {
				return false, false, err
			}
			top, err := s.at(s.top)
			if err != nil {
				return false, false, err
			}
			if err := s.vm.Tbl.SetField(recv, low, top); err != nil {
				return false, false, err
			}

		case compile.OpAssignTemporary:
			top, err := s.at(s.top)
			if err != nil {
				return false, false, err
			}
			if err := s.tempAtPut(low, top); err != nil {
				return false, false, err
			}

		case compile.OpMarkArguments:
			s.pendingReturnPoint = s.top - low + 1

		case compile.OpSendMessage:
			sel, err := s.literalAt(low)
			if err != nil {
				return false, false, err
			}
			if err := s.beginSend(sel, s.pendingReturnPoint); err != nil {
				return false, false, err
			}
			return false, false, nil

		case compile.OpSendUnary:
			if !s.vm.Watching && low <= 1 {
				top, err := s.at(s.top)
				if err != nil {
					return false, false, err
				}
				if top == object.Nil {
					result := s.vm.Tbl.True
					if low == 1 { // notNil
						result = s.vm.Tbl.False
					}
					if err := s.set(s.top, result); err != nil {
						return false, false, err
					}
					continue
				}
			}
			sym, ok := s.vm.Tbl.UnarySelector(low)
			if !ok {
				return false, false, errUnreachable("unknown common unary selector")
			}
			if err := s.beginSend(sym, s.top); err != nil {
				return false, false, err
			}
			return false, false, nil

		case compile.OpSendBinary:
			if !s.vm.Watching && low <= 12 {
				a, err := s.at(s.top - 1)
				if err != nil {
					return false, false, err
				}
				b, err := s.at(s.top)
				if err != nil {
					return false, false, err
				}
				if result, ok := s.vm.Prims.Invoke(s.vm, 60+low, []object.Ref{a, b}); ok {
					if err := s.set(s.top-1, result); err != nil {
						return false, false, err
					}
					if _, err := s.pop(); err != nil {
						return false, false, err
					}
					continue
				}
			}
			sym, ok := s.vm.Tbl.BinarySelector(low)
			if !ok {
				return false, false, errUnreachable("unknown common binary selector")
			}
			if err := s.beginSend(sym, s.top-1); err != nil {
				return false, false, err
			}
			return false, false, nil

		case compile.OpDoPrimitive:
			argc := low
			primNum := int(s.nextByte())
			if err := s.doPrimitive(argc, primNum); err != nil {
				return false, false, err
			}

		case compile.OpDoSpecial:
			doneNow, runningNow, reload, err := s.doSpecial(compile.Special(low))
			if err != nil {
				return false, false, err
			}
			if doneNow {
				return true, runningNow, nil
			}
			if reload {
				return false, false, nil
			}

		default:
			return false, false, errUnreachable("invalid bytecode")
		}
	}
}

// pushConstant handles the PushConstant bytecode; it reports whether
// thisContext needed reifying for the first time (in which case the
// caller must reload linkage state before proceeding).
func (s *execState) pushConstant(low int) (reified bool, err error) {
	switch compile.Op(low) {
	case compile.ConstZero:
		return false, s.push(object.NewSmallInt(0))
	case compile.ConstOne:
		return false, s.push(object.NewSmallInt(1))
	case compile.ConstTwo:
		return false, s.push(object.NewSmallInt(2))
	case compile.ConstMinusOne:
		return false, s.push(object.NewSmallInt(-1))
	case compile.ConstNil:
		return false, s.push(object.Nil)
	case compile.ConstTrue:
		return false, s.push(s.vm.Tbl.True)
	case compile.ConstFalse:
		return false, s.push(s.vm.Tbl.False)
	case compile.ConstThisContext:
		if s.context != object.Nil {
			return false, s.push(s.context)
		}
		return true, s.reifyContext()
	}
	return false, errUnreachable("invalid PushConstant operand")
}

// reifyContext builds a heap Context mirroring the current stack
// frame, installs it into the
// linkage header in place of nil, pushes it, and saves the current
// byte offset back to the stack before returning — the caller
// reloads linkage state from scratch afterward.
func (s *execState) reifyContext() error {
	nArgs, err := s.methodArgCount()
	if err != nil {
		return err
	}
	args, err := s.vm.Tbl.CopyFrom(s.stack, s.frameReturnPoint, nArgs+1)
	if err != nil {
		return err
	}
	tempCount := s.methodTempSize()
	temps, err := s.vm.Tbl.CopyFrom(s.stack, s.linkPointer+linkageSize, tempCount)
	if err != nil {
		return err
	}
	prevLink, err := s.at(s.linkPointer + ofstPrevLink)
	if err != nil {
		return err
	}
	ctx, err := s.vm.Tbl.NewContext(prevLink, s.method, args, temps)
	if err != nil {
		return err
	}
	if err := s.set(s.linkPointer+ofstContext, ctx); err != nil {
		return err
	}
	if err := s.set(s.linkPointer+ofstByteOffset, object.NewSmallInt(int64(s.byteOffset))); err != nil {
		return err
	}
	return s.push(ctx)
}

func (s *execState) methodTempSize() int {
	v, err := s.vm.Tbl.Field(s.method, methodTempSize)
	if err != nil {
		return 0
	}
	return int(v.SmallInt())
}

// methodArgCount derives the current method's argument count from its
// selector's shape (colon count for a keyword selector, 1 for binary,
// 0 for unary) — the method object itself has no separate argument
// count field, the same way the selector alone determines arity in
// the source language.
func (s *execState) methodArgCount() (int, error) {
	sel, err := s.vm.Tbl.Field(s.method, methodSelector)
	if err != nil {
		return 0, err
	}
	b, err := s.vm.Tbl.Bytes(sel)
	if err != nil {
		return 0, err
	}
	text := string(b)
	if len(text) == 0 {
		return 0, nil
	}
	c := text[0]
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return strings.Count(text, ":"), nil
	}
	return 1, nil
}

// doSpecial implements the DoSpecial opcode's branch/return/cascade
// helpers. It reports (done, running) when execution has concluded
// for this Execute call, or reload=true when the caller must redo
// loadLinkageBlock (a return popped to a different frame).
func (s *execState) doSpecial(op compile.Special) (done, running, reload bool, err error) {
	switch op {
	case compile.SpecialSelfReturn:
		self, err := s.argAt(0)
		if err != nil {
			return false, false, false, err
		}
		return s.doReturn(self)

	case compile.SpecialStackReturn:
		v, err := s.pop()
		if err != nil {
			return false, false, false, err
		}
		return s.doReturn(v)

	case compile.SpecialDuplicate:
		v, err := s.at(s.top)
		if err != nil {
			return false, false, false, err
		}
		return false, false, false, s.push(v)

	case compile.SpecialPopTop:
		_, err := s.pop()
		return false, false, false, err

	case compile.SpecialBranch:
		target := int(s.nextByte())
		s.byteOffset = target
		return false, false, false, nil

	case compile.SpecialBranchIfTrue:
		v, err := s.pop()
		if err != nil {
			return false, false, false, err
		}
		target := int(s.nextByte())
		if v == s.vm.Tbl.True {
			s.top++ // re-expose the nil IPOP just wrote
			s.byteOffset = target
		}
		return false, false, false, nil

	case compile.SpecialBranchIfFalse:
		v, err := s.pop()
		if err != nil {
			return false, false, false, err
		}
		target := int(s.nextByte())
		if v == s.vm.Tbl.False {
			s.top++
			s.byteOffset = target
		}
		return false, false, false, nil

	case compile.SpecialAndBranch:
		v, err := s.pop()
		if err != nil {
			return false, false, false, err
		}
		target := int(s.nextByte())
		if v == s.vm.Tbl.False {
			if err := s.push(v); err != nil {
				return false, false, false, err
			}
			s.byteOffset = target
		}
		return false, false, false, nil

	case compile.SpecialOrBranch:
		v, err := s.pop()
		if err != nil {
			return false, false, false, err
		}
		target := int(s.nextByte())
		if v == s.vm.Tbl.True {
			if err := s.push(v); err != nil {
				return false, false, false, err
			}
			s.byteOffset = target
		}
		return false, false, false, nil

	case compile.SpecialSendToSuper:
		litIdx := int(s.nextByte())
		sel, err := s.literalAt(litIdx)
		if err != nil {
			return false, false, false, err
		}
		owner, err := s.vm.Tbl.Field(s.method, methodClass)
		if err != nil {
			return false, false, false, err
		}
		super, err := s.vm.Tbl.Field(owner, 3) // class's superclass field
		if err != nil {
			return false, false, false, err
		}
		startClass := owner
		if super != object.Nil {
			startClass = super
		}
		if err := s.beginSendFrom(sel, s.pendingReturnPoint, startClass); err != nil {
			return false, false, false, err
		}
		return false, false, true, nil
	}
	return false, false, false, errUnreachable("invalid DoSpecial operand")
}

// doReturn implements both return bytecodes: the current frame is
// unwound down to its saved return point, the result is pushed for
// the caller, and the previous linkage pointer takes over. An
// outermost-frame return (previous link nil) ends the Execute call.
func (s *execState) doReturn(result object.Ref) (done, running, reload bool, err error) {
	prevLink, err := s.at(s.linkPointer + ofstPrevLink)
	if err != nil {
		return false, false, false, err
	}
	for s.top >= s.frameReturnPoint {
		if _, err := s.pop(); err != nil {
			return false, false, false, err
		}
	}
	if err := s.push(result); err != nil {
		return false, false, false, err
	}
	if prevLink == object.Nil {
		s.linkPointer = 0
		return true, false, false, nil
	}
	s.linkPointer = int(prevLink.SmallInt())
	return false, false, true, nil
}
