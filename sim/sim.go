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

// Package sim steps an elaborate.Module one clock half-cycle at a
// time: the rising-edge DFF/RAM commit pass followed by the memoised
// combinational output pass spec.md §4.6 describes.
package sim

import (
	"fmt"

	"github.com/pdxjjb/grci/elaborate"
)

// Sim drives one elaborated Module through repeated half-cycle steps.
// It owns the module's live input vector; the elaborated graph itself
// holds all other mutable state (node Visited/Cached, DFF LastState,
// RAM bytes).
type Sim struct {
	Mod    *elaborate.Module
	Inputs []int // caller-supplied bit vector, length = TotalInputBits()
	Tracer *Tracer
}

// New returns a Sim over an already-elaborated Module, with every
// input bit initialised to 0.
func New(mod *elaborate.Module) *Sim {
	return &Sim{
		Mod:    mod,
		Inputs: make([]int, mod.Desc.TotalInputBits()),
	}
}

// Step advances one half-cycle and returns the new clock level. High
// edges are state-updating ticks; low edges only toggle the clock.
func (s *Sim) Step() int {
	s.publishInputs()
	s.loadSubmoduleState()

	s.Mod.Clock.ConstVal = 1 - s.Mod.Clock.ConstVal
	s.clearAllVisited()

	if s.Mod.Clock.ConstVal == 1 {
		s.commitRisingEdge()
	}

	s.snapshotSubmoduleState()

	if s.Tracer != nil {
		s.Tracer.TraceStep(s)
	}
	return s.Mod.Clock.ConstVal
}

// Outputs evaluates and returns the module's current output vector.
// Safe to call after Step, or independently to sample combinational
// outputs without advancing the clock: it publishes the current Inputs
// and clears every memo flag before evaluating, so DFFs read their
// LastState and NANDs see the latest inputs.
func (s *Sim) Outputs() []int {
	s.publishInputs()
	s.clearAllVisited()
	out := make([]int, len(s.Mod.Root.Outputs))
	for i, n := range s.Mod.Root.Outputs {
		out[i] = evalCombinational(n)
	}
	return out
}

func (s *Sim) publishInputs() {
	for i, sinks := range s.Mod.Root.InputSinks {
		bit := s.Inputs[i]
		driver := s.Mod.ConstZero
		if bit != 0 {
			driver = s.Mod.ConstOne
		}
		for _, slot := range sinks {
			slot.Set(driver)
		}
	}
}

// loadSubmoduleState and snapshotSubmoduleState are no-ops here: named
// submodule state lives directly in the shared Dff/RamBlock nodes
// (sim.State reads and writes it in place), so there is nothing to
// copy in or out separately. Kept as named steps to mirror spec.md
// §4.6's numbered step list for callers reading the control flow.
func (s *Sim) loadSubmoduleState()     {}
func (s *Sim) snapshotSubmoduleState() {}

func (s *Sim) clearAllVisited() {
	for i := range s.Mod.AllNodes {
		s.Mod.AllNodes[i].Visited = false
	}
}

func (s *Sim) clearCombinationalVisited() {
	for i := range s.Mod.AllNodes {
		n := &s.Mod.AllNodes[i]
		if n.Kind != elaborate.NodeDff && n.Kind != elaborate.NodeRamOut {
			n.Visited = false
		}
	}
}

// commitRisingEdge computes every DFF's (and RAM-OUT's) new value into
// a shadow array first, reading every other DFF through its still-old
// LastState, then publishes all of them together. No DFF's LastState
// changes, and no DFF's Cached holds anything but its pre-edge
// LastState, until every shadow value has been computed, so a
// DFF later in declaration order that reads an earlier DFF's output
// sees that DFF's state as of the start of this edge, never a value
// this same edge is still in the middle of computing. This is the
// shadow approach spec.md §9 recommends.
func (s *Sim) commitRisingEdge() {
	ramServiced := make(map[*elaborate.RamBlock]bool)
	shadow := make([]int, len(s.Mod.Dffs))

	for i, d := range s.Mod.Dffs {
		switch d.Kind {
		case elaborate.NodeDff:
			shadow[i] = evalCombinational(d.D.Driver)
		case elaborate.NodeRamOut:
			if !ramServiced[d.Ram] {
				serviceRam(d.Ram)
				ramServiced[d.Ram] = true
			}
			shadow[i] = (d.Ram.StepWord >> uint(d.BitIndex)) & 1
		}
	}

	for i, d := range s.Mod.Dffs {
		d.LastState = shadow[i]
	}

	// Combinational caches computed above all read the pre-edge DFF
	// states; clear them so a later Outputs() call (or any further
	// combinational read this step) recomputes against the states just
	// committed. The DFF/RAM-OUT nodes themselves are primed directly
	// from LastState rather than re-evaluated.
	s.clearCombinationalVisited()
	for _, d := range s.Mod.Dffs {
		d.Cached = d.LastState
		d.Visited = true
	}
}

// serviceRam performs spec.md §4.6 point 6's write-then-read: if load
// is high, write the 16-bit data input to the current address before
// reading the (possibly just-written) word back into StepWord, shared
// by all 16 of this block's RAM-OUT nodes for the rest of this pass.
func serviceRam(ram *elaborate.RamBlock) {
	load := evalCombinational(ram.Load.Driver)
	addr := assembleAddress(ram)
	if load != 0 {
		word := 0
		for i := 0; i < 16; i++ {
			if evalCombinational(ram.DataIn[i].Driver) != 0 {
				word |= 1 << uint(i)
			}
		}
		writeWord(ram, addr, word)
	}
	ram.StepWord = readWord(ram, addr)
}

func assembleAddress(ram *elaborate.RamBlock) int {
	addr := 0
	for i := 0; i < 16; i++ {
		if evalCombinational(ram.Address[i].Driver) != 0 {
			addr |= 1 << uint(i)
		}
	}
	return addr
}

// writeWord and readWord store a 16-bit word little-endian across two
// bytes of the RAM's 64 KiB backing store: word at address addr
// occupies Mem[addr] (low byte) and Mem[addr+1 mod 65536] (high byte).
// Spec.md §3 fixes the store at exactly 65536 bytes (matching §6's
// 524288-bit, i.e. 65536-byte, submodule state buffer for a Ram64K)
// for a 16-bit-addressed memory, so adjacent word addresses
// necessarily share a byte; the high byte wraps at the top of the
// address space rather than indexing out of the fixed-size store.
// This addressing convention is not otherwise fixed by the language;
// any internally consistent choice produces the observable behavior
// the language specifies.
func writeWord(ram *elaborate.RamBlock, addr, word int) {
	ram.Mem[addr&0xFFFF] = byte(word & 0xFF)
	ram.Mem[(addr+1)&0xFFFF] = byte((word >> 8) & 0xFF)
}

func readWord(ram *elaborate.RamBlock, addr int) int {
	lo := int(ram.Mem[addr&0xFFFF])
	hi := int(ram.Mem[(addr+1)&0xFFFF])
	return lo | hi<<8
}

// evalCombinational returns n's current output bit, memoising via its
// Visited/Cached fields. A DFF or RAM-OUT returns its committed
// LastState without recursing through its input (breaking any cycle a
// DFF boundary is meant to break); a NAND returns NOT(a AND b); a
// RAM-OUT additionally performs, on first touch this step, a 16-bit
// read from its RAM's byte-backed memory and distributes the result
// into all 16 sibling RAM-OUT caches at once (spec.md §4.6 point 5).
func evalCombinational(n *elaborate.Node) int {
	if n.Visited {
		return n.Cached
	}
	switch n.Kind {
	case elaborate.NodeConstant:
		n.Cached = n.ConstVal
		n.Visited = true
	case elaborate.NodeNand:
		a := evalCombinational(n.A.Driver)
		b := evalCombinational(n.B.Driver)
		if a == 1 && b == 1 {
			n.Cached = 0
		} else {
			n.Cached = 1
		}
		n.Visited = true
	case elaborate.NodeDff:
		n.Cached = n.LastState
		n.Visited = true
	case elaborate.NodeRamOut:
		readAndDistributeRam(n.Ram)
	}
	return n.Cached
}

func readAndDistributeRam(ram *elaborate.RamBlock) {
	addr := assembleAddress(ram)
	word := readWord(ram, addr)
	for i := 0; i < 16; i++ {
		ram.Out[i].Cached = (word >> uint(i)) & 1
		ram.Out[i].Visited = true
	}
}

// SubmoduleState returns a handle onto a named submodule's DFF-backed
// state buffer, indexed by bit. For an ordinary submodule the buffer
// has one bit per DFF (declaration order within the subtree); for a
// Ram64K submodule it has 524288 bits (65536 bytes * 8), packed per
// spec.md §6.
func (s *Sim) SubmoduleState(name string) (*State, error) {
	rng, ok := s.Mod.Root.Named[name]
	if !ok {
		return nil, fmt.Errorf("no submodule named %q", name)
	}
	return &State{sim: s, offset: rng.Offset, length: rng.Length}, nil
}

// State is a live view onto a named submodule's backing DFFs (or, for
// a Ram64K submodule, its 64 KiB store), readable and writable between
// Step calls.
type State struct {
	sim    *Sim
	offset int
	length int
}

// IsRAM reports whether this handle names a single Ram64K submodule
// (all 16 of its RAM-OUT nodes share one RamBlock).
func (st *State) IsRAM() bool {
	return st.length == 16 && st.sim.Mod.Dffs[st.offset].Kind == elaborate.NodeRamOut
}

// Len returns the state buffer's length in bits: one per DFF, or
// 524288 for a Ram64K submodule.
func (st *State) Len() int {
	if st.IsRAM() {
		return 65536 * 8
	}
	return st.length
}

// Get reads bit i (0/1) of the state buffer.
func (st *State) Get(i int) (int, error) {
	if i < 0 || i >= st.Len() {
		return 0, fmt.Errorf("state index %d out of range [0,%d)", i, st.Len())
	}
	if st.IsRAM() {
		ram := st.sim.Mod.Dffs[st.offset].Ram
		byteIdx, bitIdx := i/8, i%8
		return int((ram.Mem[byteIdx] >> uint(bitIdx)) & 1), nil
	}
	return st.sim.Mod.Dffs[st.offset+i].LastState, nil
}

// Set writes bit i (0/1) of the state buffer, taking effect on the
// next Step call.
func (st *State) Set(i, bit int) error {
	if i < 0 || i >= st.Len() {
		return fmt.Errorf("state index %d out of range [0,%d)", i, st.Len())
	}
	if st.IsRAM() {
		ram := st.sim.Mod.Dffs[st.offset].Ram
		byteIdx, bitIdx := i/8, i%8
		if bit != 0 {
			ram.Mem[byteIdx] |= 1 << uint(bitIdx)
		} else {
			ram.Mem[byteIdx] &^= 1 << uint(bitIdx)
		}
		return nil
	}
	st.sim.Mod.Dffs[st.offset+i].LastState = bit
	return nil
}
