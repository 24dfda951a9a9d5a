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

// Package grci is the public surface of the Gate-Relay Circuit
// Interpreter: compile GRCI HDL source, elaborate a named module into
// a runnable simulation instance, step it one clock half-cycle at a
// time, and inspect or mutate named submodule state between steps.
//
// It wires together, in order, lexer (tokenize) -> parser (parse) ->
// ir (infer widths, lower to a netlist) -> elaborate (instantiate a
// flat node graph) -> sim (step the graph). See DESIGN.md for how each
// package is grounded in the retrieval pack.
package grci

import (
	"regexp"

	"github.com/pdxjjb/grci/elaborate"
	"github.com/pdxjjb/grci/ir"
	"github.com/pdxjjb/grci/parser"
	"github.com/pdxjjb/grci/sim"
)

// lineMsg matches the "line N: detail" prefix every parser/ir error
// carries, so Context can surface it as Error.Line without every
// lower package needing to know about the public Error type.
var lineMsg = regexp.MustCompile(`^line (\d+): (.*)$`)

func asCompileError(err error) *Error {
	if err == nil {
		return nil
	}
	if m := lineMsg.FindStringSubmatch(err.Error()); m != nil {
		line := 0
		for _, c := range m[1] {
			line = line*10 + int(c-'0')
		}
		return compileErr(line, m[2])
	}
	return compileErr(0, err.Error())
}

// Context is a compiler session: a module registry that repeated
// Compile calls add to, per spec.md §6's "compile_src ... Repeat-call
// additive."
type Context struct {
	reg     *ir.Registry
	lastErr *Error
}

// New constructs a compiler context with the built-in Nand, Dff, and
// Ram64K modules already registered. Spec.md §6's `init(alloc, realloc,
// free)` takes an explicit host allocator triple; arena.Arena is this
// repo's Go substitute (see DESIGN.md), allocated per Module by
// InitModule rather than threaded through Context, since nothing at
// compile time needs pointer-stable storage.
func New() *Context {
	return &Context{reg: ir.NewRegistry()}
}

// Compile parses, infers widths for, and lowers zero or more module
// definitions in src, registering each in the context. Previously
// compiled modules remain visible to later Compile calls and are
// unaffected if this call fails partway through (spec.md §7: "Partial
// state may exist... callers that require atomicity must discard the
// context").
func (c *Context) Compile(src []byte) error {
	p, err := parser.New(src)
	if err != nil {
		c.lastErr = asCompileError(err)
		return c.lastErr
	}
	f, err := p.Parse()
	if err != nil {
		c.lastErr = asCompileError(err)
		return c.lastErr
	}
	if err := ir.Build(c.reg, f); err != nil {
		c.lastErr = asCompileError(err)
		return c.lastErr
	}
	c.lastErr = nil
	return nil
}

// Err returns the last error this Context raised, or nil. Its contents
// are valid until the next call that raises an error, matching spec.md
// §7's single-error-buffer discipline (Context-scoped here rather than
// process-global, per spec.md §9's Global-mutable-state note).
func (c *Context) Err() error {
	if c.lastErr == nil {
		return nil
	}
	return c.lastErr
}

// Close releases the context. Modules already instantiated via
// InitModule are independent of their Context and remain usable.
func (c *Context) Close() {
	c.reg = nil
}

// Module is one elaborated, runnable simulation instance: an input
// vector the caller writes before each Step, and the elaborated node
// graph Step advances.
type Module struct {
	s *sim.Sim
}

// InitModule elaborates the named, previously compiled module into a
// flat simulation instance. Returns a *Error wrapping PhaseCompilation
// if name was never compiled, or PhaseMemory if elaborating it would
// allocate an unreasonable number of primitive nodes (spec.md §6
// returns false/null on any failure; the Go surface returns an error
// instead of a sentinel).
func (c *Context) InitModule(name string) (*Module, error) {
	desc, ok := c.reg.Lookup(name)
	if !ok {
		err := compileErr(0, "no module named \""+name+"\"")
		c.lastErr = err
		return nil, err
	}
	if desc.NodeCount > elaborate.MaxNodeCount {
		err := memErr("module \"" + name + "\" would require too many primitive nodes to elaborate")
		c.lastErr = err
		return nil, err
	}
	mod := elaborate.BuildInstance(desc)
	return &Module{s: sim.New(mod)}, nil
}

// InputCount returns the module's total input bit width.
func (m *Module) InputCount() int { return len(m.s.Inputs) }

// OutputCount returns the module's total output bit width.
func (m *Module) OutputCount() int { return len(m.s.Mod.Root.Outputs) }

// SetInput writes bit i (0 or 1 treated as false/true) of the module's
// live input vector; it takes effect on the next Step or Outputs call
// (spec.md §4.6 step 1).
func (m *Module) SetInput(i, bit int) error {
	if i < 0 || i >= len(m.s.Inputs) {
		return simErr("input index out of range")
	}
	if bit != 0 {
		bit = 1
	}
	m.s.Inputs[i] = bit
	return nil
}

// Outputs evaluates and returns the module's current combinational
// output vector, safe to call independently of Step.
func (m *Module) Outputs() []int {
	return m.s.Outputs()
}

// Step advances one clock half-cycle and returns the new clock level
// (0 or 1); a transition to 1 is a state-updating rising edge.
func (m *Module) Step() int {
	return m.s.Step()
}

// SetTracer installs or clears (pass nil) a per-step trace sink.
func (m *Module) SetTracer(t *sim.Tracer) {
	m.s.Tracer = t
}

// Submodule returns a handle onto a named submodule's state buffer.
// Returns a *Error wrapping PhaseSimulation if name was never assigned
// to a part in the source (spec.md §7's only expected simulation
// error).
func (m *Module) Submodule(name string) (*Submodule, error) {
	st, err := m.s.SubmoduleState(name)
	if err != nil {
		return nil, simErr(err.Error())
	}
	return &Submodule{st: st}, nil
}

// Destroy frees every chunk backing m's elaborated node graph and
// detaches the Module from it, matching spec.md §6's explicit teardown
// lifecycle and making reuse-after-destroy a documented error for
// callers porting from the C-shaped API. Any node pointers obtained
// through m (via Outputs, Submodule, etc.) before this call must not
// be used afterward.
func (m *Module) Destroy() {
	m.s.Mod.Nodes.Release()
	m.s = nil
}

// Submodule is a live view onto one named part's backing state: its
// DFFs' bits in declaration order, or (for a Ram64K part) its 64 KiB
// store packed per spec.md §6.
type Submodule struct {
	st *sim.State
}

// Len returns the state buffer's length in bits.
func (sm *Submodule) Len() int { return sm.st.Len() }

// IsRAM reports whether this handle names a Ram64K part.
func (sm *Submodule) IsRAM() bool { return sm.st.IsRAM() }

// Get reads bit i of the state buffer.
func (sm *Submodule) Get(i int) (int, error) {
	v, err := sm.st.Get(i)
	if err != nil {
		return 0, simErr(err.Error())
	}
	return v, nil
}

// Set writes bit i of the state buffer; it takes effect on the next
// Step call, matching spec.md §4.6 step 2's "load submodule state"
// contract.
func (sm *Submodule) Set(i, bit int) error {
	if err := sm.st.Set(i, bit); err != nil {
		return simErr(err.Error())
	}
	return nil
}
