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

	"github.com/smalltalk-go/lst/lex"
	"github.com/smalltalk-go/lst/object"
)

// parseTerm implements:
//   term := NameConst | IntConst | FloatConst | '-' number | CharConst
//         | SymConst | StrConst | ArrayBegin arrayBody ')' | '(' expression ')'
//         | '<' primitive '>' | '[' block ']'
// reporting whether the term was the pseudo-variable 'super', which
// changes how the enclosing send is compiled.
func (p *Parser) parseTerm() (isSuper bool, err error) {
	tok, err := p.lx.Next()
	if err != nil {
		return false, err
	}
	switch tok.Kind {
	case lex.NameConst:
		return p.termName(tok.Text)
	case lex.IntConst:
		return false, p.pushSmallInt(tok.IntVal)
	case lex.FloatConst:
		r, err := p.tbl.NewFloat(tok.FloatVal)
		if err != nil {
			return false, err
		}
		return false, p.pushLiteral(r)
	case lex.CharConst:
		r, err := p.tbl.NewChar(tok.Text[0])
		if err != nil {
			return false, err
		}
		return false, p.pushLiteral(r)
	case lex.SymConst:
		r, err := p.tbl.NewSymbol(tok.Text)
		if err != nil {
			return false, err
		}
		return false, p.pushLiteral(r)
	case lex.StrConst:
		r, err := p.tbl.NewStString(tok.Text)
		if err != nil {
			return false, err
		}
		return false, p.pushLiteral(r)
	case lex.ArrayBegin:
		r, err := p.parseArrayLiteral()
		if err != nil {
			return false, err
		}
		return false, p.pushLiteral(r)
	case lex.Binary:
		return p.termBinaryLead(tok.Text)
	}
	return false, fmt.Errorf("compile: unexpected token %q in expression", tok.Text)
}

func (p *Parser) termName(name string) (isSuper bool, err error) {
	switch name {
	case "self":
		return false, p.asm.emit(OpPushArgument, 0)
	case "super":
		if err := p.asm.emit(OpPushArgument, 0); err != nil {
			return false, err
		}
		return true, nil
	case "nil":
		return false, p.asm.emit(OpPushConstant, int(ConstNil))
	case "true":
		return false, p.asm.emit(OpPushConstant, int(ConstTrue))
	case "false":
		return false, p.asm.emit(OpPushConstant, int(ConstFalse))
	case "thisContext":
		return false, p.asm.emit(OpPushConstant, int(ConstThisContext))
	}
	return false, p.pushVariable(name)
}

// pushVariable resolves name against arguments, temporaries, instance
// variables, and finally the global (class/symbol) namespace, in that
// order, matching the method scope built by flattenInstanceVars.
func (p *Parser) pushVariable(name string) error {
	if i := indexOf(p.args, name); i >= 0 {
		return p.asm.emit(OpPushArgument, i+1)
	}
	if i := indexOf(p.temps, name); i >= 0 {
		return p.asm.emit(OpPushTemporary, i)
	}
	if i := indexOf(p.instVars, name); i >= 0 {
		return p.asm.emit(OpPushInstance, i)
	}
	g, err := p.tbl.LookupGlobal(name)
	if err != nil {
		return fmt.Errorf("compile: undeclared variable %q", name)
	}
	return p.pushLiteral(g)
}

func (p *Parser) pushLiteral(v object.Ref) error {
	i, err := p.asm.literal(v)
	if err != nil {
		return err
	}
	return p.asm.emit(OpPushLiteral, i)
}

// pushSmallInt emits a PushConstant shortcut for the handful of small
// integers the bytecode encodes directly, falling back to the literal
// pool otherwise.
func (p *Parser) pushSmallInt(v int64) error {
	switch v {
	case 0:
		return p.asm.emit(OpPushConstant, int(ConstZero))
	case 1:
		return p.asm.emit(OpPushConstant, int(ConstOne))
	case 2:
		return p.asm.emit(OpPushConstant, int(ConstTwo))
	case -1:
		return p.asm.emit(OpPushConstant, int(ConstMinusOne))
	}
	if v > object.MaxSmallInt || v < object.MinSmallInt {
		f, err := p.tbl.NewFloat(float64(v))
		if err != nil {
			return err
		}
		return p.pushLiteral(f)
	}
	return p.pushLiteral(object.NewSmallInt(v))
}

func (p *Parser) termBinaryLead(text string) (isSuper bool, err error) {
	switch text {
	case "(":
		if err := p.parseExpression(); err != nil {
			return false, err
		}
		if _, err := p.expectClosing(")"); err != nil {
			return false, err
		}
		return false, nil
	case "-":
		tok, err := p.lx.Next()
		if err != nil {
			return false, err
		}
		switch tok.Kind {
		case lex.IntConst:
			return false, p.pushSmallInt(-tok.IntVal)
		case lex.FloatConst:
			r, err := p.tbl.NewFloat(-tok.FloatVal)
			if err != nil {
				return false, err
			}
			return false, p.pushLiteral(r)
		}
		return false, fmt.Errorf("compile: expected a number after unary '-', got %q", tok.Text)
	case "<":
		return false, p.parsePrimitivePragma()
	case "[":
		return false, p.parseBlockLiteral()
	}
	return false, fmt.Errorf("compile: unexpected token %q in expression", text)
}

// parseArrayLiteral parses a #( ... ) literal array; the opening
// ArrayBegin token has already been consumed. Elements may themselves
// be numbers, symbols (bare identifiers and keyword runs read as
// symbols), strings, characters, or nested array literals.
func (p *Parser) parseArrayLiteral() (object.Ref, error) {
	var elems []object.Ref
	for {
		tok, err := p.lx.Next()
		if err != nil {
			return object.Nil, err
		}
		if tok.Kind == lex.Closing && tok.Text == ")" {
			break
		}
		var v object.Ref
		switch tok.Kind {
		case lex.NameConst, lex.NameColon, lex.Binary:
			text := tok.Text
			if tok.Kind == lex.NameColon {
				text += ":"
			}
			v, err = p.tbl.NewSymbol(text)
		case lex.IntConst:
			v = object.NewSmallInt(tok.IntVal)
		case lex.FloatConst:
			v, err = p.tbl.NewFloat(tok.FloatVal)
		case lex.CharConst:
			v, err = p.tbl.NewChar(tok.Text[0])
		case lex.SymConst:
			v, err = p.tbl.NewSymbol(tok.Text)
		case lex.StrConst:
			v, err = p.tbl.NewStString(tok.Text)
		case lex.ArrayBegin:
			v, err = p.parseArrayLiteral()
		default:
			return object.Nil, fmt.Errorf("compile: unexpected token %q in array literal", tok.Text)
		}
		if err != nil {
			return object.Nil, err
		}
		elems = append(elems, v)
	}
	arr, err := p.tbl.NewArray(len(elems))
	if err != nil {
		return object.Nil, err
	}
	for i, v := range elems {
		if err := p.tbl.SetField(arr, i, v); err != nil {
			return object.Nil, err
		}
	}
	return arr, nil
}

// parsePrimitivePragma compiles `< num arg* >`, a term that invokes a
// primitive directly rather than through message dispatch. Each
// argument is itself a term, pushed left to right ahead of the
// primitive call; the closing '>' is consumed on return.
func (p *Parser) parsePrimitivePragma() error {
	numTok, err := p.expect(lex.IntConst)
	if err != nil {
		return err
	}
	argCount := 0
	for {
		tok, err := p.lx.Next()
		if err != nil {
			return err
		}
		if tok.Kind == lex.Binary && tok.Text == ">" {
			break
		}
		p.lx.PushToken(tok)
		if _, err := p.parseTerm(); err != nil {
			return err
		}
		argCount++
	}
	return p.asm.emitDoPrimitive(argCount, int(numTok.IntVal))
}

// parseBlockLiteral compiles a general block literal `[:a :b | body]`.
// A Block template is allocated at compile time with its argument
// count and first-argument temporary slot set directly; the running
// code pushes that template and the enclosing context, builds the
// runtime Block via primitive 29, then jumps past the inline body
// (whose entry offset is patched into the template afterward). The
// opening '[' has already been consumed.
func (p *Parser) parseBlockLiteral() error {
	savedTemps := len(p.temps)
	var paramNames []string
	for {
		tok, err := p.lx.Next()
		if err != nil {
			return err
		}
		if !(tok.Kind == lex.Binary && tok.Text == ":") {
			p.lx.PushToken(tok)
			break
		}
		name, err := p.expect(lex.NameConst)
		if err != nil {
			return err
		}
		paramNames = append(paramNames, name.Text)
	}
	if len(paramNames) > 0 {
		bar, err := p.expect(lex.Binary)
		if err != nil {
			return err
		}
		if bar.Text != "|" {
			return fmt.Errorf("compile: expected '|' after block parameters, got %q", bar.Text)
		}
	}
	argLocation := savedTemps
	for _, name := range paramNames {
		if _, err := p.declareTemp(name); err != nil {
			return err
		}
	}

	blk, err := p.tbl.NewBlock()
	if err != nil {
		return err
	}
	if err := p.tbl.SetField(blk, 1, object.NewSmallInt(int64(len(paramNames)))); err != nil {
		return err
	}
	if err := p.tbl.SetField(blk, 2, object.NewSmallInt(int64(argLocation))); err != nil {
		return err
	}
	if err := p.pushLiteral(blk); err != nil {
		return err
	}
	if err := p.asm.emit(OpPushConstant, int(ConstThisContext)); err != nil {
		return err
	}
	if err := p.asm.emitDoPrimitive(2, primBlockCreate); err != nil {
		return err
	}

	skipPatch, err := p.asm.emitBranch(SpecialBranch)
	if err != nil {
		return err
	}
	entry := p.asm.pos()
	if err := p.tbl.SetField(blk, 3, object.NewSmallInt(int64(entry))); err != nil {
		return err
	}
	_, count, err := p.parseStatements()
	if err != nil {
		return err
	}
	if count == 0 {
		if err := p.asm.emit(OpPushConstant, int(ConstNil)); err != nil {
			return err
		}
	}
	if err := p.asm.emitSpecial(SpecialStackReturn); err != nil {
		return err
	}
	p.temps = p.temps[:savedTemps]
	if _, err := p.expectClosing("]"); err != nil {
		return err
	}
	return p.asm.patchBranch(skipPatch, p.asm.pos())
}
