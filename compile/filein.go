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
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/smalltalk-go/lst/object"
)

// FileIn reads a class-definition module from r, installing each
// class it declares and each method it compiles into tbl. The
// line-oriented grammar (one declaration per "Class" line, one
// "Methods" block per class, bodies separated by lines starting with
// '|' or ']') accumulates each body in a strings.Builder rather than
// a fixed-size buffer, so an overlong method body is never silently
// truncated.
func FileIn(tbl *object.Table, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "*":
			continue // comment line
		case "Class":
			if err := readClassDeclaration(tbl, fields[1:]); err != nil {
				return err
			}
		case "Methods":
			if len(fields) < 2 {
				return fmt.Errorf("filein: Methods line missing a class name")
			}
			if err := readMethods(tbl, sc, fields[1]); err != nil {
				return err
			}
		default:
			return fmt.Errorf("filein: unrecognized line %q", line)
		}
	}
	return sc.Err()
}

// findOrCreateClass resolves name to an existing class or allocates a
// fresh zero-instance-variable one under Object.
func findOrCreateClass(tbl *object.Table, name string) (object.Ref, error) {
	if cls, err := tbl.WellKnownClass(name); err == nil {
		return cls, nil
	}
	obj, err := tbl.WellKnownClass("Object")
	if err != nil {
		return object.Nil, err
	}
	return tbl.NewClass(name, 0, obj)
}

// readClassDeclaration handles one "Class <name> [<superclass>
// [ivar...]]" line: the name right after the class name, if any, is
// always the superclass (never an instance variable), matching the
// original reader's unconditional single lookahead.
func readClassDeclaration(tbl *object.Table, rest []string) error {
	if len(rest) == 0 {
		return fmt.Errorf("filein: Class line missing a name")
	}
	class, err := findOrCreateClass(tbl, rest[0])
	if err != nil {
		return err
	}
	size := 0
	ivarNames := rest[1:]
	if len(rest) > 1 {
		super, err := findOrCreateClass(tbl, rest[1])
		if err != nil {
			return err
		}
		if err := tbl.SetField(class, 3, super); err != nil {
			return err
		}
		superSize, err := tbl.Field(super, 1)
		if err != nil {
			return err
		}
		size = int(superSize.SmallInt())
		ivarNames = rest[2:]
	}
	if len(ivarNames) > 0 {
		vars, err := tbl.NewArray(len(ivarNames))
		if err != nil {
			return err
		}
		for i, name := range ivarNames {
			sym, err := tbl.NewSymbol(name)
			if err != nil {
				return err
			}
			if err := tbl.SetField(vars, i, sym); err != nil {
				return err
			}
		}
		if err := tbl.SetField(class, 4, vars); err != nil {
			return err
		}
		size += len(ivarNames)
	}
	return tbl.SetField(class, 1, object.NewSmallInt(int64(size)))
}

// readMethods compiles the methods of one "Methods <class> ... ]"
// block: each method's source accumulates until a line starting with
// '|' (which also opens the next method, carrying any trailing text
// on that same line forward) or ']' (which closes the block).
func readMethods(tbl *object.Table, sc *bufio.Scanner, className string) error {
	class, err := findOrCreateClass(tbl, className)
	if err != nil {
		return err
	}
	carry := ""
	for {
		var buf strings.Builder
		buf.WriteString(carry)
		carry = ""

		var terminator string
		for {
			if !sc.Scan() {
				return fmt.Errorf("filein: unexpected end of file while reading methods of %s", className)
			}
			line := sc.Text()
			if strings.HasPrefix(line, "|") || strings.HasPrefix(line, "]") {
				terminator = line
				break
			}
			buf.WriteString(line)
			buf.WriteString("\n")
		}

		if text := strings.TrimSpace(buf.String()); text != "" {
			if err := compileAndInstall(tbl, class, buf.String()); err != nil {
				// a single bad method is reported and skipped, not
				// fatal to the rest of the file-in.
				fmt.Printf("filein: %s\n", err)
			}
		}

		if strings.HasPrefix(terminator, "]") {
			return nil
		}
		carry = terminator[1:]
	}
}

func compileAndInstall(tbl *object.Table, class object.Ref, src string) error {
	method, err := CompileMethod(tbl, class, src)
	if err != nil {
		return err
	}
	sel, err := tbl.Field(method, 1)
	if err != nil {
		return err
	}
	return tbl.InstallMethod(class, sel, method)
}
