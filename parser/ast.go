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

package parser

// Param is a formal input or output parameter: an identifier with a
// declared bus width (always >= 1, always known at parse time — a
// slice on a parameter declaration means "bus of this width", never
// an offset).
type Param struct {
	Name  string
	Width int
	Line  int
}

// ExprKind tags the variant of an Expr.
type ExprKind int

const (
	ExprRef ExprKind = iota
	ExprConcat
)

// Expr is either a reference to an identifier or integer literal
// (optionally sliced) or a {...} concatenation of sub-expressions.
// Concatenation is kept as a first-class AST node rather than
// synthesized into a fresh named wire, per spec's own Design Notes.
type Expr struct {
	Kind ExprKind
	Line int

	// ExprRef fields.
	Name      string // empty if this is an integer literal
	IsLiteral bool
	LitVal    int64
	HasSlice  bool
	SliceLo   int
	SliceHi   int // equals SliceLo for a single-bit slice

	// ExprConcat fields.
	Parts []*Expr
}

// PartStmt instantiates another module: `(name:)? callee(args) -> outs`.
type PartStmt struct {
	InstanceName string // empty if the part is unnamed
	Callee       string
	Args         []*Expr
	Outs         []*Expr
	Line         int
}

// WireStmt is `(expr | {exprs}) -> expr`: a source expression (or
// concatenation) feeding a named destination.
type WireStmt struct {
	Source *Expr
	Dest   *Expr
	Line   int
}

// BodyKind tags whether a body statement is a part or a wire.
type BodyKind int

const (
	BodyPart BodyKind = iota
	BodyWire
)

// BodyStmt is one statement of a module body, in source order.
type BodyStmt struct {
	Kind BodyKind
	Part *PartStmt
	Wire *WireStmt
}

// ModuleDecl is one parsed `module ... { ... }` declaration.
type ModuleDecl struct {
	Name    string
	Inputs  []*Param
	Outputs []*Param
	Body    []*BodyStmt
	Line    int
}

// File is the parse result: every module declared in one source unit,
// in declaration order.
type File struct {
	Modules []*ModuleDecl
}
