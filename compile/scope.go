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

package compile

import (
	"golang.org/x/exp/slices"

	"github.com/smalltalk-go/lst/object"
)

// flattenInstanceVars walks class's superclass chain from Object down,
// so inherited instance variables precede locally declared ones; the
// resulting index is what PushInstance/AssignInstance address.
func flattenInstanceVars(tbl *object.Table, class object.Ref) ([]string, error) {
	var chain []object.Ref
	for c := class; c != object.Nil; {
		chain = append(chain, c)
		super, err := tbl.Field(c, 3)
		if err != nil {
			return nil, err
		}
		c = super
	}
	var names []string
	for i := len(chain) - 1; i >= 0; i-- {
		ivars, err := tbl.Field(chain[i], 4)
		if err != nil {
			return nil, err
		}
		n := tbl.FieldCount(ivars)
		for j := 0; j < n; j++ {
			sym, err := tbl.Field(ivars, j)
			if err != nil {
				return nil, err
			}
			b, err := tbl.Bytes(sym)
			if err != nil {
				return nil, err
			}
			names = append(names, string(b))
		}
	}
	if len(names) > MaxInstVars {
		return nil, errTooLarge("direct instance variable count", len(names))
	}
	return names, nil
}

// indexOf resolves name against the parser's temporary/argument scope
// lists (emitAssign and pushVariable's lookup order both run through
// this), walked in declaration order so the first match wins.
func indexOf(names []string, name string) int {
	return slices.Index(names, name)
}
