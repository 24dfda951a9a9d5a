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

// newNand, newDff, and newRam64K return the three reserved built-in
// ModuleDescs. Their names always resolve to these, never to a
// user declaration of the same name (spec.md §3 invariant).
func newNand() *ModuleDesc {
	return &ModuleDesc{
		Name:            "Nand",
		Builtin:         BuiltinNand,
		Inputs:          []Param{{Name: "a", Width: 1}, {Name: "b", Width: 1}},
		Outputs:         []Param{{Name: "out", Width: 1}},
		InputSinkCounts: []int{1, 1},
		NodeCount:       1,
		DffCount:        0,
	}
}

func newDff() *ModuleDesc {
	return &ModuleDesc{
		Name:            "Dff",
		Builtin:         BuiltinDff,
		Inputs:          []Param{{Name: "d", Width: 1}},
		Outputs:         []Param{{Name: "out", Width: 1}},
		InputSinkCounts: []int{1},
		NodeCount:       1,
		DffCount:        1,
	}
}

// newRam64K models the 64K x 16 RAM block: 16 data-in bits, one load
// bit, 16 address bits in, 16 data-out bits. Every input bit reports
// sink count 1, matching spec.md §4.4 ("RAM64K reports 1 per bit").
// Its 16 RAM-OUT nodes are also appended to the DFF list (spec.md
// §4.5), since RAM state only changes on the rising edge exactly like
// a DFF's last_state.
func newRam64K() *ModuleDesc {
	inputs := []Param{
		{Name: "in", Width: 16},
		{Name: "load", Width: 1},
		{Name: "address", Width: 16},
	}
	sinks := make([]int, 0, 33)
	for i := 0; i < 16+1+16; i++ {
		sinks = append(sinks, 1)
	}
	return &ModuleDesc{
		Name:            "Ram64K",
		Builtin:         BuiltinRam64K,
		Inputs:          inputs,
		Outputs:         []Param{{Name: "out", Width: 16}},
		InputSinkCounts: sinks,
		NodeCount:       16,
		DffCount:        16,
	}
}
