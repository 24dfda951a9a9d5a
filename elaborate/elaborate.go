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

package elaborate

import (
	"github.com/pdxjjb/grci/arena"
	"github.com/pdxjjb/grci/ir"
)

// MaxNodeCount bounds the total primitive node count BuildInstance
// will allocate for in one call. A module's NodeCount is the
// recursive sum of every part it instantiates, so deep composition of
// already-large modules can blow this up well past what MaxModules
// alone bounds; InitModule checks against this before allocating.
const MaxNodeCount = 1 << 20

// SubmoduleRange locates a named submodule's DFFs (or RAM-OUT nodes,
// which occupy the same list) within a Module's flat Dffs slice.
type SubmoduleRange struct {
	Offset int
	Length int
}

// Instance is one elaborated occurrence of a module (the top level or
// any nested part). InputSinks[i] lists every primitive Slot that
// input bit i ultimately feeds, possibly spanning several descendant
// nodes; Outputs[i] is the single Node driving output bit i.
type Instance struct {
	InputSinks [][]*Slot
	Outputs    []*Node
	Named      map[string]SubmoduleRange

	DffOffset int
	DffLength int
}

// Module is a fully elaborated top-level simulation instance: the
// node arena backing every Node in its subtree, the three shared
// per-instance nodes (const-0, const-1, clock), the flat DFF/RAM-OUT
// reference list in declaration order, and the root Instance.
type Module struct {
	Desc  *ir.ModuleDesc
	Nodes *arena.Arena[Node]

	// AllNodes is the single contiguous allocation backing every Node
	// in this Module's subtree (shared constants and clock included),
	// exposed so the simulator can clear Visited flags without
	// threading a traversal through the Instance tree.
	AllNodes []Node

	ConstZero *Node
	ConstOne  *Node
	Clock     *Node

	Dffs []*Node

	Root *Instance
}

// nodeCursor hands out Nodes from a single pre-sized arena allocation,
// matching spec.md §4.5's "allocate a node array sized to the
// description's total node count."
type nodeCursor struct {
	pool []Node
	next int
}

func (c *nodeCursor) alloc() *Node {
	n := &c.pool[c.next]
	c.next++
	return n
}

// BuildInstance elaborates desc into a flat Module. Post-order
// instantiation (children before the parent wires them) is implicit
// in the recursive structure below: a part's Outputs exist before its
// enclosing module's connection list is walked.
func BuildInstance(desc *ir.ModuleDesc) *Module {
	nodes := arena.New[Node]()
	pool := nodes.Alloc(desc.NodeCount + 3)
	cursor := &nodeCursor{pool: pool}

	constZero := cursor.alloc()
	constZero.Kind = NodeConstant
	constZero.ConstVal = 0

	constOne := cursor.alloc()
	constOne.Kind = NodeConstant
	constOne.ConstVal = 1

	// The shared clock node starts high so the first step (a falling
	// edge) does not commit state; the first rising edge is the first
	// true cycle after reset, per spec.md §4.6.
	clock := cursor.alloc()
	clock.Kind = NodeConstant
	clock.ConstVal = 1

	dffs := make([]*Node, 0, desc.DffCount)
	root := buildPart(desc, cursor, &dffs, constZero, constOne, clock)

	return &Module{
		Desc:      desc,
		Nodes:     nodes,
		AllNodes:  pool,
		ConstZero: constZero,
		ConstOne:  constOne,
		Clock:     clock,
		Dffs:      dffs,
		Root:      root,
	}
}

func buildPart(desc *ir.ModuleDesc, cursor *nodeCursor, dffs *[]*Node, constZero, constOne, clock *Node) *Instance {
	offsetBefore := len(*dffs)
	var inst *Instance
	switch desc.Builtin {
	case ir.BuiltinNand:
		inst = buildNand(cursor)
	case ir.BuiltinDff:
		inst = buildDff(cursor, dffs)
	case ir.BuiltinRam64K:
		inst = buildRam(cursor, dffs)
	default:
		inst = buildComposite(desc, cursor, dffs, constZero, constOne, clock)
	}
	inst.DffOffset = offsetBefore
	inst.DffLength = len(*dffs) - offsetBefore
	return inst
}

func buildNand(cursor *nodeCursor) *Instance {
	n := cursor.alloc()
	n.Kind = NodeNand
	return &Instance{
		InputSinks: [][]*Slot{{&n.A}, {&n.B}},
		Outputs:    []*Node{n},
	}
}

func buildDff(cursor *nodeCursor, dffs *[]*Node) *Instance {
	n := cursor.alloc()
	n.Kind = NodeDff
	*dffs = append(*dffs, n)
	return &Instance{
		InputSinks: [][]*Slot{{&n.D}},
		Outputs:    []*Node{n},
	}
}

func buildRam(cursor *nodeCursor, dffs *[]*Node) *Instance {
	ram := &RamBlock{}
	outs := make([]*Node, 16)
	for i := 0; i < 16; i++ {
		n := cursor.alloc()
		n.Kind = NodeRamOut
		n.Ram = ram
		n.BitIndex = i
		ram.Out[i] = n
		outs[i] = n
		*dffs = append(*dffs, n)
	}
	sinks := make([][]*Slot, 0, 33)
	for i := 0; i < 16; i++ {
		sinks = append(sinks, []*Slot{&ram.DataIn[i]})
	}
	sinks = append(sinks, []*Slot{&ram.Load})
	for i := 0; i < 16; i++ {
		sinks = append(sinks, []*Slot{&ram.Address[i]})
	}
	return &Instance{InputSinks: sinks, Outputs: outs}
}

func buildComposite(desc *ir.ModuleDesc, cursor *nodeCursor, dffs *[]*Node, constZero, constOne, clock *Node) *Instance {
	children := make([]*Instance, len(desc.Parts))
	for p, part := range desc.Parts {
		children[p] = buildPart(part.Callee, cursor, dffs, constZero, constOne, clock)
	}

	inst := &Instance{
		InputSinks: make([][]*Slot, desc.TotalInputBits()),
		Named:      make(map[string]SubmoduleRange),
	}

	for p, conns := range desc.PartConns {
		child := children[p]
		for j, d := range conns {
			slots := child.InputSinks[j]
			switch d.Kind {
			case ir.DriverExternal:
				inst.InputSinks[d.InputBit] = append(inst.InputSinks[d.InputBit], slots...)
			case ir.DriverInternal:
				driver := children[d.PartIndex].Outputs[d.OutputBit]
				for _, s := range slots {
					s.Set(driver)
				}
			case ir.DriverConstant:
				driver := constZero
				if d.Value == 1 {
					driver = constOne
				}
				for _, s := range slots {
					s.Set(driver)
				}
			}
		}
	}

	inst.Outputs = make([]*Node, desc.TotalOutputBits())
	for i, d := range desc.OutputDrivers {
		switch d.Kind {
		case ir.DriverInternal:
			inst.Outputs[i] = children[d.PartIndex].Outputs[d.OutputBit]
		case ir.DriverConstant:
			if d.Value == 1 {
				inst.Outputs[i] = constOne
			} else {
				inst.Outputs[i] = constZero
			}
		}
	}

	for p, part := range desc.Parts {
		child := children[p]
		for name, rng := range child.Named {
			inst.Named[name] = rng
		}
		if part.InstanceName != "" {
			inst.Named[part.InstanceName] = SubmoduleRange{Offset: child.DffOffset, Length: child.DffLength}
		}
	}

	return inst
}
