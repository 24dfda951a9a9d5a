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

package ir

import (
	"fmt"

	"github.com/pdxjjb/grci/parser"
)

// symbolEntry is every scope-bound name's fully resolved, per-bit
// source: for a module input, External bits at its absolute offset;
// for a part output or a wire, the transitively-resolved bits of
// whatever fed it. Because a wire may only reference earlier-declared
// names (spec.md §4.3.2c), a symbol is always fully resolved the
// instant it is bound — there is no separate lowering pass.
type symbolEntry struct {
	drivers []Driver
}

type builder struct {
	reg          *Registry
	desc         *ModuleDesc
	scope        map[string]*symbolEntry
	outputDriven []bool
}

// Build lowers every module declaration in f, in order, into the
// registry. Each module becomes visible to parts declared after it in
// the same file or in a later Build call; forward references are a
// compile error, matching spec.md §4.2.
func Build(reg *Registry, f *parser.File) error {
	for _, decl := range f.Modules {
		desc, err := buildModule(reg, decl)
		if err != nil {
			return err
		}
		if err := reg.Register(desc, decl.Line); err != nil {
			return err
		}
	}
	return nil
}

func buildModule(reg *Registry, decl *parser.ModuleDecl) (*ModuleDesc, error) {
	desc := &ModuleDesc{Name: decl.Name}
	for _, p := range decl.Inputs {
		desc.Inputs = append(desc.Inputs, Param{Name: p.Name, Width: p.Width})
	}
	for _, p := range decl.Outputs {
		desc.Outputs = append(desc.Outputs, Param{Name: p.Name, Width: p.Width})
	}

	b := &builder{
		reg:          reg,
		desc:         desc,
		scope:        make(map[string]*symbolEntry),
		outputDriven: make([]bool, desc.TotalOutputBits()),
	}
	desc.OutputDrivers = make([]Driver, desc.TotalOutputBits())

	offset := 0
	for _, p := range desc.Inputs {
		bits := make([]Driver, p.Width)
		for k := range bits {
			bits[k] = Driver{Kind: DriverExternal, InputBit: offset + k}
		}
		b.scope[p.Name] = &symbolEntry{drivers: bits}
		offset += p.Width
	}

	if err := b.build(decl.Body); err != nil {
		return nil, err
	}

	for i, driven := range b.outputDriven {
		if !driven {
			return nil, fmt.Errorf("line %d: module %q: output bit %d has no driver", decl.Line, decl.Name, i)
		}
	}

	b.computeSinkCounts()
	b.computeAggregateCounts()

	return desc, nil
}

// build lowers a module body in two passes. A DFF-mediated feedback
// loop (a Mux's input naming the register's own not-yet-declared
// output, exactly as Nand2Tetris's Bit chip reads dffOut before the
// DFF part that produces it) requires every part's OUTPUT bindings to
// be visible before any part's ARGS are resolved. Pass one walks the
// body in order, reserving each part's slot and binding its Outs
// destinations immediately — this is independent of that part's own
// args, which are not yet known. Pass two walks the body again, now
// resolving every part's Args (which may name any part's output,
// forward or backward) and every wire statement's Source (which, since
// wires are not pre-registered in pass one, may only name an
// earlier-processed wire — spec.md §4.3.2c's backward-only rule holds
// for wire-to-wire chains specifically).
func (b *builder) build(body []*parser.BodyStmt) error {
	type pending struct {
		stmt   *parser.PartStmt
		callee *ModuleDesc
	}
	var parts []pending

	for _, stmt := range body {
		if stmt.Kind != parser.BodyPart {
			continue
		}
		part := stmt.Part
		callee, ok := b.reg.Lookup(part.Callee)
		if !ok {
			return fmt.Errorf("line %d: part references undeclared module %q", part.Line, part.Callee)
		}
		if len(part.Outs) != len(callee.Outputs) {
			return fmt.Errorf("line %d: %q expects %d output parameter(s), got %d", part.Line, part.Callee, len(callee.Outputs), len(part.Outs))
		}

		partIndex := len(b.desc.Parts)
		b.desc.Parts = append(b.desc.Parts, PartInst{Callee: callee, InstanceName: part.InstanceName})
		b.desc.PartConns = append(b.desc.PartConns, nil)

		bitOffset := 0
		for i, outExpr := range part.Outs {
			w := callee.Outputs[i].Width
			bits := make([]Driver, w)
			for k := 0; k < w; k++ {
				bits[k] = Driver{Kind: DriverInternal, PartIndex: partIndex, OutputBit: bitOffset + k}
			}
			bitOffset += w
			if err := b.bindDest(outExpr, bits); err != nil {
				return err
			}
		}
		parts = append(parts, pending{stmt: part, callee: callee})
	}

	partIndex := 0
	for _, stmt := range body {
		switch stmt.Kind {
		case parser.BodyPart:
			p := parts[partIndex]
			partIndex++
			if len(p.stmt.Args) != len(p.callee.Inputs) {
				return fmt.Errorf("line %d: %q expects %d input parameter(s), got %d", p.stmt.Line, p.stmt.Callee, len(p.callee.Inputs), len(p.stmt.Args))
			}
			conns := make([]Driver, 0, p.callee.TotalInputBits())
			for i, argExpr := range p.stmt.Args {
				bits, err := b.resolveBits(argExpr)
				if err != nil {
					return err
				}
				if len(bits) != p.callee.Inputs[i].Width {
					return fmt.Errorf("line %d: %q parameter %q wants width %d, got %d", p.stmt.Line, p.stmt.Callee, p.callee.Inputs[i].Name, p.callee.Inputs[i].Width, len(bits))
				}
				conns = append(conns, bits...)
			}
			b.desc.PartConns[partIndex-1] = conns
		case parser.BodyWire:
			bits, err := b.resolveBits(stmt.Wire.Source)
			if err != nil {
				return err
			}
			if err := b.bindDest(stmt.Wire.Dest, bits); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveBits resolves a source expression down to one Driver per
// bit. Only symbols already in scope (module inputs, any part's
// output, or an earlier wire) or literals may appear; part outputs are
// all pre-bound before this runs (see build), while a named wire only
// enters scope once its own statement is processed, which is what
// keeps wire-to-wire references backward-only.
func (b *builder) resolveBits(e *parser.Expr) ([]Driver, error) {
	switch e.Kind {
	case parser.ExprConcat:
		var all []Driver
		for _, part := range e.Parts {
			bits, err := b.resolveBits(part)
			if err != nil {
				return nil, err
			}
			all = append(all, bits...)
		}
		return all, nil
	case parser.ExprRef:
		if e.IsLiteral {
			return []Driver{{Kind: DriverConstant, Value: int(e.LitVal)}}, nil
		}
		sym, ok := b.scope[e.Name]
		if !ok {
			if b.isOutputName(e.Name) {
				return nil, fmt.Errorf("line %d: %q is an output parameter and cannot be read as a source", e.Line, e.Name)
			}
			return nil, fmt.Errorf("line %d: unresolved identifier %q", e.Line, e.Name)
		}
		bits := sym.drivers
		if e.HasSlice {
			if e.SliceLo < 0 || e.SliceHi >= len(bits) {
				return nil, fmt.Errorf("line %d: slice [%d..%d] out of range for %q (width %d)", e.Line, e.SliceLo, e.SliceHi, e.Name, len(bits))
			}
			bits = bits[e.SliceLo : e.SliceHi+1]
		}
		return bits, nil
	}
	return nil, fmt.Errorf("line %d: malformed expression", e.Line)
}

// bindDest assigns bits to a destination expression: either a slice
// of this module's own output parameters, or a fresh wire name. An
// existing wire or input name may not be redefined — wires are
// single-assignment, matching every worked example in the language.
func (b *builder) bindDest(e *parser.Expr, bits []Driver) error {
	if e.Kind != parser.ExprRef || e.IsLiteral {
		return fmt.Errorf("line %d: invalid assignment destination", e.Line)
	}
	if off, w, ok := b.outputParamRange(e.Name); ok {
		lo, hi := 0, w-1
		if e.HasSlice {
			lo, hi = e.SliceLo, e.SliceHi
		}
		if lo < 0 || hi >= w {
			return fmt.Errorf("line %d: slice [%d..%d] out of range for output %q (width %d)", e.Line, lo, hi, e.Name, w)
		}
		want := hi - lo + 1
		if want != len(bits) {
			return fmt.Errorf("line %d: output %q expects %d bit(s), got %d", e.Line, e.Name, want, len(bits))
		}
		for _, d := range bits {
			if d.Kind == DriverExternal {
				return fmt.Errorf("line %d: output %q cannot be driven directly by a module input; route it through a part", e.Line, e.Name)
			}
		}
		for k := 0; k < want; k++ {
			idx := off + lo + k
			if b.outputDriven[idx] {
				return fmt.Errorf("line %d: output bit %d of %q already has a driver", e.Line, idx, e.Name)
			}
			b.desc.OutputDrivers[idx] = bits[k]
			b.outputDriven[idx] = true
		}
		return nil
	}

	if _, exists := b.scope[e.Name]; exists {
		return fmt.Errorf("line %d: %q is already defined and cannot be reassigned", e.Line, e.Name)
	}
	if e.HasSlice {
		return fmt.Errorf("line %d: cannot slice %q while declaring it", e.Line, e.Name)
	}
	b.scope[e.Name] = &symbolEntry{drivers: bits}
	return nil
}

func (b *builder) outputParamRange(name string) (offset, width int, ok bool) {
	off := 0
	for _, p := range b.desc.Outputs {
		if p.Name == name {
			return off, p.Width, true
		}
		off += p.Width
	}
	return 0, 0, false
}

func (b *builder) isOutputName(name string) bool {
	_, _, ok := b.outputParamRange(name)
	return ok
}

func (b *builder) computeSinkCounts() {
	b.desc.InputSinkCounts = make([]int, b.desc.TotalInputBits())
	for p, conns := range b.desc.PartConns {
		callee := b.desc.Parts[p].Callee
		for j, d := range conns {
			if d.Kind == DriverExternal {
				b.desc.InputSinkCounts[d.InputBit] += callee.InputSinkCounts[j]
			}
		}
	}
}

func (b *builder) computeAggregateCounts() {
	for _, part := range b.desc.Parts {
		b.desc.NodeCount += part.Callee.NodeCount
		b.desc.DffCount += part.Callee.DffCount
	}
}
