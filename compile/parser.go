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
	"fmt"
	"strings"

	"github.com/smalltalk-go/lst/lex"
	"github.com/smalltalk-go/lst/object"
)

// Parser compiles one method body at a time against a fixed class
// scope. A Parser is not safe for concurrent or repeated use across
// unrelated methods; CompileMethod builds a fresh one per call.
type Parser struct {
	lx       *lex.Lexer
	tbl      *object.Table
	asm      *assembler
	class    object.Ref
	instVars []string
	args     []string
	temps    []string
}

// CompileMethod parses src as a method body under class and, on
// success, returns a populated Method object (selector, bytecode,
// literals, stack-size 6, temporary-size 1+maxTemporary, source text).
// A syntax or limit error discards the partial method; the caller is
// expected to report it and continue.
func CompileMethod(tbl *object.Table, class object.Ref, src string) (object.Ref, error) {
	instVars, err := flattenInstanceVars(tbl, class)
	if err != nil {
		return object.Nil, err
	}
	p := &Parser{
		lx:       lex.New(src),
		tbl:      tbl,
		asm:      newAssembler(),
		class:    class,
		instVars: instVars,
	}
	selector, err := p.parseMessagePattern()
	if err != nil {
		return object.Nil, err
	}
	if err := p.parseTemporaries(); err != nil {
		return object.Nil, err
	}
	if err := p.parseBody(); err != nil {
		return object.Nil, err
	}
	return p.buildMethod(selector, src)
}

func (p *Parser) buildMethod(selector string, src string) (object.Ref, error) {
	m, err := p.tbl.NewMethod()
	if err != nil {
		return object.Nil, err
	}
	sel, err := p.tbl.NewSymbol(selector)
	if err != nil {
		return object.Nil, err
	}
	p.tbl.SetField(m, 1, sel)

	codeRef, err := p.tbl.NewByteArray(len(p.asm.code))
	if err != nil {
		return object.Nil, err
	}
	if b, err := p.tbl.Bytes(codeRef); err == nil {
		copy(b, p.asm.code)
	}
	p.tbl.SetField(m, 2, codeRef)

	if len(p.asm.literals) > 0 {
		litArr, err := p.tbl.NewArray(len(p.asm.literals))
		if err != nil {
			return object.Nil, err
		}
		for i, l := range p.asm.literals {
			p.tbl.SetField(litArr, i, l)
		}
		p.tbl.SetField(m, 3, litArr)
	} else {
		p.tbl.SetField(m, 3, object.Nil)
	}

	p.tbl.SetField(m, 4, object.NewSmallInt(6))
	p.tbl.SetField(m, 5, object.NewSmallInt(int64(1+p.asm.maxTemp)))
	p.tbl.SetField(m, 6, p.class)
	p.tbl.SetField(m, 7, object.NewSmallInt(0)) // watch flag, off

	srcRef, err := p.tbl.NewStString(src)
	if err != nil {
		return object.Nil, err
	}
	p.tbl.SetField(m, 0, srcRef)
	return m, nil
}

// --- message pattern & temporaries ---

func (p *Parser) parseMessagePattern() (string, error) {
	tok, err := p.lx.Next()
	if err != nil {
		return "", err
	}
	switch tok.Kind {
	case lex.NameColon:
		var sb strings.Builder
		for {
			sb.WriteString(tok.Text)
			sb.WriteByte(':')
			arg, err := p.expect(lex.NameConst)
			if err != nil {
				return "", err
			}
			if len(p.args)+1 > MaxArgs {
				return "", errTooLarge("argument count", len(p.args)+1)
			}
			p.args = append(p.args, arg.Text)
			tok, err = p.lx.Next()
			if err != nil {
				return "", err
			}
			if tok.Kind != lex.NameColon {
				p.lx.PushToken(tok)
				break
			}
		}
		return sb.String(), nil
	case lex.Binary:
		arg, err := p.expect(lex.NameConst)
		if err != nil {
			return "", err
		}
		if len(p.args)+1 > MaxArgs {
			return "", errTooLarge("argument count", len(p.args)+1)
		}
		p.args = append(p.args, arg.Text)
		return tok.Text, nil
	case lex.NameConst:
		return tok.Text, nil
	default:
		return "", fmt.Errorf("compile: malformed message pattern near %q", tok.Text)
	}
}

func (p *Parser) parseTemporaries() error {
	tok, err := p.lx.Next()
	if err != nil {
		return err
	}
	if !(tok.Kind == lex.Binary && tok.Text == "|") {
		p.lx.PushToken(tok)
		return nil
	}
	for {
		tok, err := p.lx.Next()
		if err != nil {
			return err
		}
		if tok.Kind == lex.Binary && tok.Text == "|" {
			return nil
		}
		if tok.Kind != lex.NameConst {
			return fmt.Errorf("compile: expected temporary name, got %q", tok.Text)
		}
		if _, err := p.declareTemp(tok.Text); err != nil {
			return err
		}
	}
}

func (p *Parser) declareTemp(name string) (int, error) {
	if len(p.temps)+1 > MaxTemps {
		return 0, errTooLarge("temporary count", len(p.temps)+1)
	}
	p.temps = append(p.temps, name)
	idx := len(p.temps) - 1
	p.asm.touchTemp(idx)
	return idx, nil
}

func (p *Parser) expect(k lex.Kind) (lex.Token, error) {
	tok, err := p.lx.Next()
	if err != nil {
		return tok, err
	}
	if tok.Kind != k {
		return tok, fmt.Errorf("compile: expected %s, got %q (%s)", k, tok.Text, tok.Kind)
	}
	return tok, nil
}

// --- body & statements ---

func (p *Parser) parseBody() error {
	lastWasReturn, _, err := p.parseStatements()
	if err != nil {
		return err
	}
	if !lastWasReturn {
		if err := p.asm.emitSpecial(SpecialPopTop); err != nil {
			return err
		}
		if err := p.asm.emitSpecial(SpecialSelfReturn); err != nil {
			return err
		}
	}
	return nil
}

// parseStatements compiles a '.'-separated statement sequence up to
// (without consuming) the next ']', ')', or end of input, leaving every
// statement's popped except the stack effect of an explicit '^' return.
// It reports whether the last statement compiled was such a return, and
// how many statements were compiled (0 for an empty body).
func (p *Parser) parseStatements() (lastWasReturn bool, count int, err error) {
	for {
		lastWasReturn = false
		tok, err := p.lx.Next()
		if err != nil {
			return false, count, err
		}
		if tok.Kind == lex.InputEnd || (tok.Kind == lex.Closing && (tok.Text == "]" || tok.Text == ")")) {
			p.lx.PushToken(tok)
			break
		}
		if tok.Kind == lex.Closing && tok.Text == "." {
			continue // empty statement
		}
		p.lx.PushToken(tok)
		isReturn, err := p.parseStatement()
		if err != nil {
			return false, count, err
		}
		count++
		lastWasReturn = isReturn

		sep, err := p.lx.Next()
		if err != nil {
			return false, count, err
		}
		if sep.Kind == lex.Closing && sep.Text == "." {
			if !isReturn {
				if err := p.asm.emitSpecial(SpecialPopTop); err != nil {
					return false, count, err
				}
			}
			continue
		}
		p.lx.PushToken(sep)
		break
	}
	return lastWasReturn, count, nil
}

// parseStatement compiles one statement, reporting whether it was an
// explicit '^' return (StackReturn already emitted).
func (p *Parser) parseStatement() (bool, error) {
	tok, err := p.lx.Next()
	if err != nil {
		return false, err
	}
	if tok.Kind == lex.Binary && tok.Text == "^" {
		if err := p.parseExpression(); err != nil {
			return false, err
		}
		return true, p.asm.emitSpecial(SpecialStackReturn)
	}
	p.lx.PushToken(tok)
	return false, p.parseExpression()
}

// parseExpression handles 'name <- expr' assignment, leaving the
// assigned value on the stack, and otherwise falls to keyContinuation.
func (p *Parser) parseExpression() error {
	tok, err := p.lx.Next()
	if err != nil {
		return err
	}
	if tok.Kind == lex.NameConst {
		next, err := p.lx.Next()
		if err != nil {
			return err
		}
		if next.Kind == lex.Binary && next.Text == "<-" {
			if err := p.parseExpression(); err != nil {
				return err
			}
			return p.emitAssign(tok.Text)
		}
		p.lx.PushToken(next)
	}
	p.lx.PushToken(tok)
	return p.parseContinuationTop()
}

// emitAssign resolves name against temporaries first, then instance
// variables, in the order an assignment target should shadow outer
// scopes.
func (p *Parser) emitAssign(name string) error {
	if i := indexOf(p.temps, name); i >= 0 {
		return p.asm.emit(OpAssignTemporary, i)
	}
	if i := indexOf(p.instVars, name); i >= 0 {
		return p.asm.emit(OpAssignInstance, i)
	}
	return fmt.Errorf("compile: assignment to unknown variable %q", name)
}
