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
	"github.com/smalltalk-go/lst/interp"
	"github.com/smalltalk-go/lst/object"
)

// arithPrimitive implements primitives 60-70, the small-integer
// fast paths SendBinary invokes directly for the eleven common binary
// selectors (+, -, *, /, =, <, >, <=, >=, ~=, ==), in the same order
// object.BinarySelector indexes them. Both operands must already be
// tagged small integers; anything else, or a result that would
// overflow the tagged range, reports ok=false so the caller falls
// through to a real message send: a miss from a 60-79 primitive means
// overflow or coercion failed and dispatch should fall back to an
// ordinary send.
func arithPrimitive(vm *interp.VM, num int, args []object.Ref) (object.Ref, bool) {
	if len(args) != 2 || !args[0].IsSmallInt() || !args[1].IsSmallInt() {
		return object.Nil, false
	}
	a := args[0].SmallInt()
	b := args[1].SmallInt()

	boolRef := func(v bool) object.Ref {
		if v {
			return vm.Tbl.True
		}
		return vm.Tbl.False
	}

	switch num - 60 {
	case 0: // +
		r := a + b
		if overflows(a, b, r) {
			return object.Nil, false
		}
		return object.NewSmallInt(r), true
	case 1: // -
		r := a - b
		if overflows(a, -b, r) {
			return object.Nil, false
		}
		return object.NewSmallInt(r), true
	case 2: // *
		r := a * b
		if a != 0 && r/a != b {
			return object.Nil, false
		}
		if r > object.MaxSmallInt || r < object.MinSmallInt {
			return object.Nil, false
		}
		return object.NewSmallInt(r), true
	case 3: // /
		if b == 0 || a%b != 0 {
			return object.Nil, false
		}
		return object.NewSmallInt(a / b), true
	case 4: // =
		return boolRef(a == b), true
	case 5: // <
		return boolRef(a < b), true
	case 6: // >
		return boolRef(a > b), true
	case 7: // <=
		return boolRef(a <= b), true
	case 8: // >=
		return boolRef(a >= b), true
	case 9: // ~=
		return boolRef(a != b), true
	case 10: // ==
		return boolRef(args[0] == args[1]), true
	}
	return object.Nil, false
}

// overflows reports whether a+b (computed already as r) landed outside
// the tagged small-integer range.
func overflows(a, b, r int64) bool {
	if b > 0 && r < a {
		return true
	}
	if b < 0 && r > a {
		return true
	}
	return r > object.MaxSmallInt || r < object.MinSmallInt
}
