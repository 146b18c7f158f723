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

// parseContinuationTop parses one full receiver-plus-cascades
// expression: a term's binary continuation, its (possibly inlined)
// keyword message, and any further `; message` cascades sent to the
// same original receiver.
func (p *Parser) parseContinuationTop() error {
	isSuper, err := p.parseBinaryContinuation()
	if err != nil {
		return err
	}
	return p.parseContinuation(isSuper)
}

// parseContinuation compiles the keyword message (if any) for a
// receiver whose binaryContinuation has already run, then loops over
// `; message` cascades: each duplicates the original receiver (still
// sitting under the just-computed result), sends the next message to
// that duplicate, and discards its result.
func (p *Parser) parseContinuation(isSuper bool) error {
	if err := p.finishKeyContinuation(isSuper); err != nil {
		return err
	}
	for {
		tok, err := p.lx.Next()
		if err != nil {
			return err
		}
		if !(tok.Kind == lex.Closing && tok.Text == ";") {
			p.lx.PushToken(tok)
			return nil
		}
		if err := p.asm.emitSpecial(SpecialDuplicate); err != nil {
			return err
		}
		if err := p.parseCascadedMessage(isSuper); err != nil {
			return err
		}
		if err := p.asm.emitSpecial(SpecialPopTop); err != nil {
			return err
		}
	}
}

// parseCascadedMessage compiles one cascaded message against a
// receiver that is already on the stack (no term to parse): its unary
// and binary continuations, then its keyword message, if any.
func (p *Parser) parseCascadedMessage(isSuper bool) error {
	if _, err := p.parseUnaryContinuation0(); err != nil {
		return err
	}
	if err := p.parseBinaryTail(); err != nil {
		return err
	}
	return p.finishKeyContinuation(isSuper)
}

// finishKeyContinuation compiles the keyword message, if any, for a
// receiver whose binary continuation has already been compiled.
func (p *Parser) finishKeyContinuation(isSuper bool) error {
	tok, err := p.lx.Next()
	if err != nil {
		return err
	}
	if tok.Kind != lex.NameColon {
		p.lx.PushToken(tok)
		return nil
	}

	if !isSuper {
		if handled, err := p.tryInlineControl(tok.Text); err != nil {
			return err
		} else if handled {
			return nil
		}
	}

	var sel strings.Builder
	argCount := 0
	for {
		sel.WriteString(tok.Text)
		sel.WriteByte(':')
		argCount++
		if err := p.parseTermThenBinary(); err != nil {
			return err
		}
		next, err := p.lx.Next()
		if err != nil {
			return err
		}
		if next.Kind != lex.NameColon {
			p.lx.PushToken(next)
			break
		}
		tok = next
	}
	return p.emitSend(sel.String(), argCount, isSuper)
}

// parseTermThenBinary parses one keyword-message argument: a term,
// any unary sends applied to it, then a binary continuation.
func (p *Parser) parseTermThenBinary() error {
	if _, err := p.parseTerm(); err != nil {
		return err
	}
	if _, err := p.parseUnaryContinuation0(); err != nil {
		return err
	}
	return p.parseBinaryTail()
}

// parseBinaryContinuation := unaryContinuation (Binary term unaryContinuation)*
func (p *Parser) parseBinaryContinuation() (isSuper bool, err error) {
	isSuper, err = p.parseUnaryContinuation()
	if err != nil {
		return false, err
	}
	return isSuper, p.parseBinaryTail()
}

func (p *Parser) parseBinaryTail() error {
	for {
		tok, err := p.lx.Next()
		if err != nil {
			return err
		}
		if tok.Kind != lex.Binary || tok.Text == "[" || tok.Text == "(" || tok.Text == "^" {
			p.lx.PushToken(tok)
			return nil
		}
		op := tok.Text
		if _, err := p.parseTerm(); err != nil {
			return err
		}
		if _, err := p.parseUnaryContinuation0(); err != nil {
			return err
		}
		if err := p.emitSend(op, 1, false); err != nil {
			return err
		}
	}
}

// parseUnaryContinuation := term (NameConst)*
func (p *Parser) parseUnaryContinuation() (isSuper bool, err error) {
	isSuper, err = p.parseTerm()
	if err != nil {
		return false, err
	}
	first := isSuper
	more, err := p.parseUnaryContinuation0()
	return first && !more, err
}

// parseUnaryContinuation0 consumes any run of unary-send NameConst
// tokens applied to whatever is already on the stack, reporting
// whether at least one was applied (which clears a pending super-send).
func (p *Parser) parseUnaryContinuation0() (applied bool, err error) {
	for {
		tok, err := p.lx.Next()
		if err != nil {
			return applied, err
		}
		if tok.Kind != lex.NameConst {
			p.lx.PushToken(tok)
			return applied, nil
		}
		if err := p.emitSend(tok.Text, 0, false); err != nil {
			return applied, err
		}
		applied = true
	}
}

// emitSend compiles a message send of selector with argCount explicit
// arguments already pushed (not counting the receiver, which is
// already on the stack beneath them).
func (p *Parser) emitSend(selector string, argCount int, isSuper bool) error {
	if isSuper {
		sym, err := p.tbl.NewSymbol(selector)
		if err != nil {
			return err
		}
		li, err := p.asm.literal(sym)
		if err != nil {
			return err
		}
		if err := p.asm.emit(OpMarkArguments, argCount+1); err != nil {
			return err
		}
		return p.asm.emitSendToSuper(li)
	}
	if argCount == 0 {
		if idx := object.UnarySelectorIndex(selector); idx >= 0 {
			return p.asm.emit(OpSendUnary, idx)
		}
	}
	if argCount == 1 {
		if idx := object.BinarySelectorIndex(selector); idx >= 0 {
			return p.asm.emit(OpSendBinary, idx)
		}
	}
	sym, err := p.tbl.NewSymbol(selector)
	if err != nil {
		return err
	}
	li, err := p.asm.literal(sym)
	if err != nil {
		return err
	}
	if err := p.asm.emit(OpMarkArguments, argCount+1); err != nil {
		return err
	}
	return p.asm.emit(OpSendMessage, li)
}

// --- control-flow inlining ---

// tryInlineControl compiles ifTrue:/ifFalse:/and:/or:/whileTrue: in
// place of a regular keyword send when key (the keyword's first part,
// already consumed) names one of them; these five are always inlined,
// regardless of whether their argument is a literal block or some
// other expression.
func (p *Parser) tryInlineControl(key string) (handled bool, err error) {
	switch key {
	case "ifTrue":
		return true, p.compileIfElse(true)
	case "ifFalse":
		return true, p.compileIfElse(false)
	case "and":
		return true, p.compileShortCircuit(SpecialAndBranch)
	case "or":
		return true, p.compileShortCircuit(SpecialOrBranch)
	case "whileTrue":
		return true, p.compileWhileTrue()
	}
	return false, nil
}

// compileOptimizedArg compiles a conditional's argument: a literal
// block's body is inlined directly (leaving its value on the stack);
// anything else is compiled as a term, its continuations, and a
// trailing #value send, matching the receiver-already-evaluated shape
// every other keyword argument takes.
func (p *Parser) compileOptimizedArg() error {
	tok, err := p.lx.Next()
	if err != nil {
		return err
	}
	if tok.Kind == lex.Binary && tok.Text == "[" {
		return p.compileInlineBlockBody()
	}
	p.lx.PushToken(tok)
	if _, err := p.parseTerm(); err != nil {
		return err
	}
	if _, err := p.parseUnaryContinuation0(); err != nil {
		return err
	}
	if err := p.parseBinaryTail(); err != nil {
		return err
	}
	return p.emitSend("value", 0, false)
}

// compileShortCircuit handles and:/or:.
func (p *Parser) compileShortCircuit(branch Special) error {
	patch, err := p.asm.emitBranch(branch)
	if err != nil {
		return err
	}
	if err := p.compileOptimizedArg(); err != nil {
		return err
	}
	return p.asm.patchBranch(patch, p.asm.pos())
}

// compileIfElse handles ifTrue:/ifFalse:, optionally chained with a
// second ifFalse:/ifTrue: part. firstIsTrueBranch tells us whether the
// keyword just consumed was ifTrue: (true-arm) or ifFalse: (false-arm).
//
// Single-arm: a BranchIfFalse/BranchIfTrue brackets the one compiled
// argument; on the untaken path the branch itself leaves a nil on the
// stack and jumps to just past the argument, so either way exactly
// one value results. Two-arm: the first branch's target is widened by
// two bytes to land on a PopTop that discards that auto-pushed nil
// before falling into the second argument; an unconditional Branch
// after the first argument skips over that PopTop and the second
// argument entirely.
func (p *Parser) compileIfElse(firstIsTrueBranch bool) error {
	branchSpecial := SpecialBranchIfFalse
	if !firstIsTrueBranch {
		branchSpecial = SpecialBranchIfTrue
	}
	patch1, err := p.asm.emitBranch(branchSpecial)
	if err != nil {
		return err
	}
	if err := p.compileOptimizedArg(); err != nil {
		return err
	}
	if err := p.asm.patchBranch(patch1, p.asm.pos()); err != nil {
		return err
	}

	wantKey := "ifFalse"
	if !firstIsTrueBranch {
		wantKey = "ifTrue"
	}
	chained, err := p.peekChainedKeyword(wantKey)
	if err != nil {
		return err
	}
	if !chained {
		return nil
	}
	if err := p.asm.patchBranch(patch1, p.asm.pos()+2); err != nil {
		return err
	}
	patch2, err := p.asm.emitBranch(SpecialBranch)
	if err != nil {
		return err
	}
	if err := p.asm.emitSpecial(SpecialPopTop); err != nil {
		return err
	}
	if err := p.compileOptimizedArg(); err != nil {
		return err
	}
	return p.asm.patchBranch(patch2, p.asm.pos())
}

// compileWhileTrue handles whileTrue:. Its receiver (the condition
// block or expression, already compiled and left on the stack) is
// duplicated and sent #value each iteration; the body's result is
// discarded and the loop repeats until the condition goes false, at
// which point the surviving stack value is the original receiver.
func (p *Parser) compileWhileTrue() error {
	loopTop := p.asm.pos()
	if err := p.asm.emitSpecial(SpecialDuplicate); err != nil {
		return err
	}
	if err := p.emitSend("value", 0, false); err != nil {
		return err
	}
	exitPatch, err := p.asm.emitBranch(SpecialBranchIfFalse)
	if err != nil {
		return err
	}
	if err := p.compileOptimizedArg(); err != nil {
		return err
	}
	if err := p.asm.emitSpecial(SpecialPopTop); err != nil {
		return err
	}
	backPatch, err := p.asm.emitBranch(SpecialBranch)
	if err != nil {
		return err
	}
	if err := p.asm.patchBranch(backPatch, loopTop); err != nil {
		return err
	}
	if err := p.asm.patchBranch(exitPatch, p.asm.pos()); err != nil {
		return err
	}
	return p.asm.emitSpecial(SpecialPopTop)
}

// peekChainedKeyword reports whether the next token is the keyword
// part wantKey (e.g. "ifFalse"), consuming it if so and pushing it
// back otherwise.
func (p *Parser) peekChainedKeyword(wantKey string) (bool, error) {
	tok, err := p.lx.Next()
	if err != nil {
		return false, err
	}
	if tok.Kind == lex.NameColon && tok.Text == wantKey {
		return true, nil
	}
	p.lx.PushToken(tok)
	return false, nil
}

// compileInlineBlockBody compiles a niladic block's statements in
// place (no Block object is constructed); the opening '[' has already
// been consumed. Its value is left on the operand stack.
func (p *Parser) compileInlineBlockBody() error {
	if err := p.skipOptionalBar(); err != nil {
		return err
	}
	// an explicit '^' here still performs a full method return, same as
	// anywhere else in a method body; otherwise the last statement's
	// value is what's left for the branch.
	_, count, err := p.parseStatements()
	if err != nil {
		return err
	}
	if count == 0 {
		if err := p.asm.emit(OpPushConstant, int(ConstNil)); err != nil {
			return err
		}
	}
	_, err = p.expectClosing("]")
	return err
}

func (p *Parser) skipOptionalBar() error {
	tok, err := p.lx.Next()
	if err != nil {
		return err
	}
	if tok.Kind == lex.Binary && tok.Text == "|" {
		for {
			t, err := p.lx.Next()
			if err != nil {
				return err
			}
			if t.Kind == lex.Binary && t.Text == "|" {
				return nil
			}
			if t.Kind != lex.NameConst {
				return fmt.Errorf("compile: expected temporary name in block, got %q", t.Text)
			}
			if _, err := p.declareTemp(t.Text); err != nil {
				return err
			}
		}
	}
	p.lx.PushToken(tok)
	return nil
}

func (p *Parser) expectClosing(text string) (lex.Token, error) {
	tok, err := p.lx.Next()
	if err != nil {
		return tok, err
	}
	if !(tok.Kind == lex.Closing || tok.Kind == lex.Binary) || tok.Text != text {
		return tok, fmt.Errorf("compile: expected %q, got %q", text, tok.Text)
	}
	return tok, nil
}
