// Copyright © 2024 Jeff Berkowitz (pdxjjb@gmail.com)
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.

// Package parser implements a recursive-descent parser for the GRCI
// structural HDL, consuming a two-token lookahead stream of
// lexer.Tokens and producing a parser.File of ModuleDecls.
package parser

import (
	"fmt"

	"github.com/pdxjjb/grci/lexer"
)

// Per-module hard limits from the language spec. The 64-module-total
// limit spans repeated compile_src calls and is enforced by the ir
// package's context registration, not here.
const (
	MaxPartsPerModule  = 64
	MaxWiresPerModule  = 32
	MaxInputBits       = 160
	MaxOutputBits      = 128
)

// Parser consumes tokens from a lexer.Lexer with one token of
// lookahead beyond the current token.
type Parser struct {
	lx   *lexer.Lexer
	cur  lexer.Token
	next lexer.Token
}

// New primes a Parser over src.
func New(src []byte) (*Parser, error) {
	p := &Parser{lx: lexer.New(src)}
	var err error
	if p.cur, err = p.lx.Next(); err != nil {
		return nil, err
	}
	if p.next, err = p.lx.Next(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	p.cur = p.next
	tok, err := p.lx.Next()
	if err != nil {
		return err
	}
	p.next = tok
	return nil
}

func (p *Parser) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.cur.Line, fmt.Sprintf(format, args...))
}

func (p *Parser) expectSymbol(sym string) error {
	if p.cur.Kind != lexer.KindSymbol || p.cur.Text != sym {
		return p.errf("expected %q, found %q", sym, p.cur.Text)
	}
	return p.advance()
}

func (p *Parser) expectKeyword(kw string) error {
	if p.cur.Kind != lexer.KindKeyword || p.cur.Text != kw {
		return p.errf("expected keyword %q, found %q", kw, p.cur.Text)
	}
	return p.advance()
}

func (p *Parser) atSymbol(sym string) bool {
	return p.cur.Kind == lexer.KindSymbol && p.cur.Text == sym
}

func (p *Parser) atArrow() bool {
	return p.atSymbol("-") && p.next.Kind == lexer.KindSymbol && p.next.Text == ">"
}

func (p *Parser) expectArrow() error {
	if !p.atArrow() {
		return p.errf("expected '->', found %q", p.cur.Text)
	}
	if err := p.advance(); err != nil { // consume '-'
		return err
	}
	return p.advance() // consume '>'
}

// Parse consumes the whole token stream and returns every module
// declaration it names.
func (p *Parser) Parse() (*File, error) {
	f := &File{}
	for p.cur.Kind != lexer.KindEOF {
		m, err := p.parseModule()
		if err != nil {
			return nil, err
		}
		f.Modules = append(f.Modules, m)
	}
	return f, nil
}

func (p *Parser) parseModule() (*ModuleDecl, error) {
	line := p.cur.Line
	if err := p.expectKeyword("module"); err != nil {
		return nil, err
	}
	if p.cur.Kind != lexer.KindIdent {
		return nil, p.errf("expected module name, found %q", p.cur.Text)
	}
	name := p.cur.Text
	if err := p.advance(); err != nil {
		return nil, err
	}

	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	inputs, err := p.parseParamList(")")
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if err := p.expectArrow(); err != nil {
		return nil, err
	}
	outputs, err := p.parseParamList("{")
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("line %d: module %q declares no outputs", line, name)
	}

	if err := totalWidth(inputs, MaxInputBits, "input"); err != nil {
		return nil, fmt.Errorf("line %d: module %q: %w", line, name, err)
	}
	if err := totalWidth(outputs, MaxOutputBits, "output"); err != nil {
		return nil, fmt.Errorf("line %d: module %q: %w", line, name, err)
	}

	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}

	return &ModuleDecl{Name: name, Inputs: inputs, Outputs: outputs, Body: body, Line: line}, nil
}

func totalWidth(params []*Param, max int, kind string) error {
	total := 0
	for _, pr := range params {
		total += pr.Width
	}
	if total > max {
		return fmt.Errorf("total %s bit count %d exceeds maximum %d", kind, total, max)
	}
	return nil
}

func (p *Parser) parseParamList(terminator string) ([]*Param, error) {
	var params []*Param
	if p.atSymbol(terminator) {
		return params, nil
	}
	for {
		pr, err := p.parseParam()
		if err != nil {
			return nil, err
		}
		params = append(params, pr)
		if p.atSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return params, nil
}

func (p *Parser) parseParam() (*Param, error) {
	if p.cur.Kind != lexer.KindIdent {
		return nil, p.errf("expected parameter name, found %q", p.cur.Text)
	}
	line := p.cur.Line
	name := p.cur.Text
	if err := p.advance(); err != nil {
		return nil, err
	}
	width := 1
	if p.atSymbol("[") {
		lo, hi, err := p.parseSlice()
		if err != nil {
			return nil, err
		}
		if hi != lo {
			// On a parameter declaration [n..m] is not permitted; only
			// the bare-width form [n] (bus of width n) is.
			return nil, fmt.Errorf("line %d: parameter %q: range slice not allowed on a parameter declaration", line, name)
		}
		width = lo
		if width < 1 {
			return nil, fmt.Errorf("line %d: parameter %q: width must be >= 1", line, name)
		}
	}
	return &Param{Name: name, Width: width, Line: line}, nil
}

// parseSlice consumes '[' INT (.. INT)? ']' and returns (lo, hi). For
// a bare '[n]' it returns (n, n); callers distinguish "width n" from
// "bit n" by context (parameter decl vs. expression).
func (p *Parser) parseSlice() (int, int, error) {
	if err := p.expectSymbol("["); err != nil {
		return 0, 0, err
	}
	if p.cur.Kind != lexer.KindInt {
		return 0, 0, p.errf("expected integer in slice, found %q", p.cur.Text)
	}
	lo := int(p.cur.IntVal)
	line := p.cur.Line
	if err := p.advance(); err != nil {
		return 0, 0, err
	}
	hi := lo
	if p.atSymbol(".") && p.next.Kind == lexer.KindSymbol && p.next.Text == "." {
		if err := p.advance(); err != nil { // consume first '.'
			return 0, 0, err
		}
		if err := p.advance(); err != nil { // consume second '.'
			return 0, 0, err
		}
		if p.cur.Kind != lexer.KindInt {
			return 0, 0, p.errf("expected integer after '..', found %q", p.cur.Text)
		}
		hi = int(p.cur.IntVal)
		if err := p.advance(); err != nil {
			return 0, 0, err
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("line %d: slice [%d..%d] has m < n", line, lo, hi)
		}
	}
	if err := p.expectSymbol("]"); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func (p *Parser) parseBody() ([]*BodyStmt, error) {
	var stmts []*BodyStmt
	parts, wires := 0, 0
	for !p.atSymbol("}") && p.cur.Kind != lexer.KindEOF {
		stmt, err := p.parseBodyStmt()
		if err != nil {
			return nil, err
		}
		switch stmt.Kind {
		case BodyPart:
			parts++
			if parts > MaxPartsPerModule {
				return nil, fmt.Errorf("line %d: module exceeds maximum of %d parts", stmt.Part.Line, MaxPartsPerModule)
			}
		case BodyWire:
			wires++
			if wires > MaxWiresPerModule {
				return nil, fmt.Errorf("line %d: module exceeds maximum of %d wires", stmt.Wire.Line, MaxWiresPerModule)
			}
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// parseBodyStmt disambiguates part vs. wire. Both begin with either
// an identifier or '{'; a part is `(IDENT ':')? IDENT '(' ...`, so we
// look past an optional "IDENT :" prefix for a following '(' to tell
// them apart, and otherwise treat the statement as a wire.
func (p *Parser) parseBodyStmt() (*BodyStmt, error) {
	if p.looksLikePart() {
		part, err := p.parsePart()
		if err != nil {
			return nil, err
		}
		return &BodyStmt{Kind: BodyPart, Part: part}, nil
	}
	wire, err := p.parseWire()
	if err != nil {
		return nil, err
	}
	return &BodyStmt{Kind: BodyWire, Wire: wire}, nil
}

func (p *Parser) looksLikePart() bool {
	if p.cur.Kind != lexer.KindIdent {
		return false
	}
	// "IDENT :" always introduces a named part.
	if p.next.Kind == lexer.KindSymbol && p.next.Text == ":" {
		return true
	}
	// "IDENT (" introduces an unnamed part; "IDENT [" or "IDENT ->"
	// or bare "IDENT" introduces a wire source expression.
	return p.next.Kind == lexer.KindSymbol && p.next.Text == "("
}

func (p *Parser) parsePart() (*PartStmt, error) {
	line := p.cur.Line
	instanceName := ""
	if p.next.Kind == lexer.KindSymbol && p.next.Text == ":" {
		instanceName = p.cur.Text
		if err := p.advance(); err != nil { // consume name
			return nil, err
		}
		if err := p.advance(); err != nil { // consume ':'
			return nil, err
		}
	}
	if p.cur.Kind != lexer.KindIdent {
		return nil, p.errf("expected part module name, found %q", p.cur.Text)
	}
	callee := p.cur.Text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	args, err := p.parseExprListUntil(")")
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if err := p.expectArrow(); err != nil {
		return nil, err
	}
	outs, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	return &PartStmt{InstanceName: instanceName, Callee: callee, Args: args, Outs: outs, Line: line}, nil
}

func (p *Parser) parseWire() (*WireStmt, error) {
	line := p.cur.Line
	src, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectArrow(); err != nil {
		return nil, err
	}
	dest, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &WireStmt{Source: src, Dest: dest, Line: line}, nil
}

func (p *Parser) parseExprList() ([]*Expr, error) {
	var exprs []*Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		if p.atSymbol(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return exprs, nil
}

func (p *Parser) parseExprListUntil(terminator string) ([]*Expr, error) {
	if p.atSymbol(terminator) {
		return nil, nil
	}
	return p.parseExprList()
}

func (p *Parser) parseExpr() (*Expr, error) {
	line := p.cur.Line
	if p.atSymbol("{") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		parts, err := p.parseExprListUntil("}")
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprConcat, Parts: parts, Line: line}, nil
	}

	if p.cur.Kind == lexer.KindInt {
		val := p.cur.IntVal
		if val != 0 && val != 1 {
			return nil, p.errf("literal %d not allowed in a wire expression; only 0 or 1", val)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprRef, IsLiteral: true, LitVal: val, Line: line}, nil
	}

	if p.cur.Kind != lexer.KindIdent {
		return nil, p.errf("expected identifier, literal, or '{', found %q", p.cur.Text)
	}
	name := p.cur.Text
	if err := p.advance(); err != nil {
		return nil, err
	}
	e := &Expr{Kind: ExprRef, Name: name, Line: line}
	if p.atSymbol("[") {
		lo, hi, err := p.parseSlice()
		if err != nil {
			return nil, err
		}
		e.HasSlice = true
		e.SliceLo = lo
		e.SliceHi = hi
	}
	return e, nil
}
