package grci

import (
	"fmt"
	"testing"
)

func TestNandTruthTable(t *testing.T) {
	ctx := New()
	mod, err := ctx.InitModule("Nand")
	if err != nil {
		t.Fatalf("InitModule: %v", err)
	}
	cases := []struct{ a, b, want int }{
		{0, 0, 1},
		{0, 1, 1},
		{1, 0, 1},
		{1, 1, 0},
	}
	for _, c := range cases {
		mod.SetInput(0, c.a)
		mod.SetInput(1, c.b)
		out := mod.Outputs()
		if out[0] != c.want {
			t.Errorf("Nand(%d,%d) = %d, want %d", c.a, c.b, out[0], c.want)
		}
	}
}

func TestAndFromTwoGates(t *testing.T) {
	src := `
module Not(in) -> out { Nand(in, in) -> out }
module And(a,b) -> out { Nand(a,b) -> t Not(t) -> out }
`
	ctx := New()
	if err := ctx.Compile([]byte(src)); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod, err := ctx.InitModule("And")
	if err != nil {
		t.Fatalf("InitModule: %v", err)
	}
	cases := []struct{ a, b, want int }{
		{0, 0, 0},
		{0, 1, 0},
		{1, 0, 0},
		{1, 1, 1},
	}
	for _, c := range cases {
		mod.SetInput(0, c.a)
		mod.SetInput(1, c.b)
		out := mod.Outputs()
		if out[0] != c.want {
			t.Errorf("And(%d,%d) = %d, want %d", c.a, c.b, out[0], c.want)
		}
	}
}

func TestRegisterLoad(t *testing.T) {
	// An 8-bit register built from a Dff per bit, gated by a Mux fed
	// back to itself, mirrors Nand2Tetris's Bit -> Register8 lineage.
	src := `
module Not(in) -> out { Nand(in,in) -> out }
module And(a,b) -> out { Nand(a,b) -> t Not(t) -> out }
module Or(a,b) -> out { Not(a) -> na Not(b) -> nb Nand(na,nb) -> out }
module Mux(a,b,sel) -> out {
	Not(sel) -> nsel
	And(a,nsel) -> x
	And(b,sel) -> y
	Or(x,y) -> out
}
module Bit(in,load) -> out {
	Mux(dffOut, in, load) -> muxOut
	Dff(muxOut) -> dffOut
	dffOut -> out
}
module Register(in[8],load) -> out[8] {
	Bit(in[0],load) -> out[0]
	Bit(in[1],load) -> out[1]
	Bit(in[2],load) -> out[2]
	Bit(in[3],load) -> out[3]
	Bit(in[4],load) -> out[4]
	Bit(in[5],load) -> out[5]
	Bit(in[6],load) -> out[6]
	Bit(in[7],load) -> out[7]
}
`
	ctx := New()
	if err := ctx.Compile([]byte(src)); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod, err := ctx.InitModule("Register")
	if err != nil {
		t.Fatalf("InitModule: %v", err)
	}

	setIn := func(v int) {
		for i := 0; i < 8; i++ {
			bit := 0
			if v&(1<<uint(i)) != 0 {
				bit = 1
			}
			mod.SetInput(i, bit)
		}
	}
	readOut := func() int {
		out := mod.Outputs()
		v := 0
		for i := 0; i < 8; i++ {
			if out[i] != 0 {
				v |= 1 << uint(i)
			}
		}
		return v
	}

	setIn(5)
	loads := []int{0, 0, 0, 0, 1, 1, 0, 0, 0, 0}
	committed := false
	for i, load := range loads {
		mod.SetInput(8, load)
		clock := mod.Step()
		if clock == 1 && load == 1 {
			committed = true
		}
		want := 0
		if committed {
			want = 5
		}
		if v := readOut(); v != want {
			t.Fatalf("after step %d (load=%d), out = %d, want %d", i, load, v, want)
		}
	}
	if !committed {
		t.Fatalf("never observed a high edge with load asserted")
	}
}

func TestCompileErrorHasLine(t *testing.T) {
	ctx := New()
	err := ctx.Compile([]byte("module M(a) -> out { ghost -> out }"))
	if err == nil {
		t.Fatalf("expected compile error")
	}
	gerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *grci.Error, got %T", err)
	}
	if gerr.Phase != PhaseCompilation {
		t.Errorf("Phase = %v, want PhaseCompilation", gerr.Phase)
	}
	if gerr.Line == 0 {
		t.Errorf("expected a non-zero line number")
	}
}

func TestSubmoduleUnknownNameIsSimulationError(t *testing.T) {
	ctx := New()
	mod, err := ctx.InitModule("Nand")
	if err != nil {
		t.Fatalf("InitModule: %v", err)
	}
	_, err = mod.Submodule("nope")
	if err == nil {
		t.Fatalf("expected simulation error for unknown submodule")
	}
	gerr, ok := err.(*Error)
	if !ok || gerr.Phase != PhaseSimulation {
		t.Fatalf("err = %#v, want *Error{Phase: PhaseSimulation}", err)
	}
}

func TestSubmoduleSnapshotRoundTrip(t *testing.T) {
	src := `module Latch(d) -> out { dff:Dff(d) -> out }`
	ctx := New()
	if err := ctx.Compile([]byte(src)); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod, err := ctx.InitModule("Latch")
	if err != nil {
		t.Fatalf("InitModule: %v", err)
	}
	mod.SetInput(0, 1)
	mod.Step() // falling edge
	mod.Step() // rising edge: commits 1

	sm, err := mod.Submodule("dff")
	if err != nil {
		t.Fatalf("Submodule: %v", err)
	}
	bit, err := sm.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if bit != 1 {
		t.Fatalf("snapshot bit = %d, want 1", bit)
	}

	if err := sm.Set(0, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mod.SetInput(0, 0)
	mod.Step() // falling edge: no commit, so the restored 0 is what the output shows
	if out := mod.Outputs()[0]; out != 0 {
		t.Fatalf("restored out = %d, want 0", out)
	}
}

func setBits(mod *Module, base, width, value int) {
	for i := 0; i < width; i++ {
		bit := 0
		if value&(1<<uint(i)) != 0 {
			bit = 1
		}
		mod.SetInput(base+i, bit)
	}
}

func readBits(bits []int, base, width int) int {
	v := 0
	for i := 0; i < width; i++ {
		if bits[base+i] != 0 {
			v |= 1 << uint(i)
		}
	}
	return v
}

func TestRam64KWriteReadRoundTrip(t *testing.T) {
	src := `module RamCell(in[16], load, address[16]) -> out[16] { ram:Ram64K(in, load, address) -> out }`
	ctx := New()
	if err := ctx.Compile([]byte(src)); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod, err := ctx.InitModule("RamCell")
	if err != nil {
		t.Fatalf("InitModule: %v", err)
	}

	const addr = 5
	const want = 0x2A
	setBits(mod, 0, 16, want)
	setBits(mod, 17, 16, addr)
	mod.SetInput(16, 1) // load high
	mod.Step()          // falling edge
	mod.Step()          // rising edge: commits the write

	if got := readBits(mod.Outputs(), 0, 16); got != want {
		t.Fatalf("immediately after write, out = 0x%X, want 0x%X", got, want)
	}

	mod.SetInput(16, 0) // load low
	mod.Step()          // falling edge
	mod.Step()          // rising edge: read-only
	if got := readBits(mod.Outputs(), 0, 16); got != want {
		t.Fatalf("read back with load low, out = 0x%X, want 0x%X", got, want)
	}
}

// TestRam64KHighAddress exercises an address in the upper half of the
// 16-bit address space, where a word-granular (addr*2) byte offset
// would index past the fixed 65536-byte store.
func TestRam64KHighAddress(t *testing.T) {
	src := `module RamCell(in[16], load, address[16]) -> out[16] { ram:Ram64K(in, load, address) -> out }`
	ctx := New()
	if err := ctx.Compile([]byte(src)); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod, err := ctx.InitModule("RamCell")
	if err != nil {
		t.Fatalf("InitModule: %v", err)
	}

	const addr = 60000
	const want = 0xBEEF
	setBits(mod, 0, 16, want)
	setBits(mod, 17, 16, addr)
	mod.SetInput(16, 1)
	mod.Step()
	mod.Step()

	if got := readBits(mod.Outputs(), 0, 16); got != want {
		t.Fatalf("high-address write/read: out = 0x%X, want 0x%X", got, want)
	}
}

// TestRippleCarryCounterReadsPreviousDffStates is a 3-bit increment
// register built the way a ripple-carry counter is always built: each
// bit's next state is a combinational function of the bits below it.
// Bit 2's carry term reads both bit 0 and bit 1 combinationally, so if
// a rising edge let a later DFF observe an earlier DFF's just-committed
// value instead of its pre-edge one, the count would corrupt as soon
// as more than one bit needs to toggle in the same edge (the 1 -> 2
// step below, where bit 1 would read bit 0's new 0 and the count
// would fall to 0 instead of 2).
func TestRippleCarryCounterReadsPreviousDffStates(t *testing.T) {
	src := `
module Not(in) -> out { Nand(in,in) -> out }
module And(a,b) -> out { Nand(a,b) -> t Not(t) -> out }
module Xor(a,b) -> out { Nand(a,b) -> n1 Nand(a,n1) -> n2 Nand(b,n1) -> n3 Nand(n2,n3) -> out }
module Counter3() -> out[3] {
	Dff(next0) -> bit0
	Not(bit0) -> next0

	Dff(next1) -> bit1
	Xor(bit1,bit0) -> next1

	And(bit0,bit1) -> carry2
	Dff(next2) -> bit2
	Xor(bit2,carry2) -> next2

	bit0 -> out[0]
	bit1 -> out[1]
	bit2 -> out[2]
}
`
	ctx := New()
	if err := ctx.Compile([]byte(src)); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	mod, err := ctx.InitModule("Counter3")
	if err != nil {
		t.Fatalf("InitModule: %v", err)
	}

	for want := 1; want <= 8; want++ {
		mod.Step() // falling edge
		mod.Step() // rising edge: increments
		if got := readBits(mod.Outputs(), 0, 3); got != want%8 {
			t.Fatalf("after %d rising edge(s), count = %d, want %d", want, got, want%8)
		}
	}
}

// TestInitModuleNodeCountCeilingIsMemoryError builds a chain of
// modules that each instantiate two copies of the previous one, so
// NodeCount doubles every level; 21 levels clears MaxNodeCount well
// within MaxModules. InitModule must refuse to elaborate it rather
// than attempt a multi-million-node allocation.
func TestInitModuleNodeCountCeilingIsMemoryError(t *testing.T) {
	ctx := New()
	if err := ctx.Compile([]byte("module G0(a) -> out { Nand(a,a) -> out }")); err != nil {
		t.Fatalf("Compile G0: %v", err)
	}
	prev, last := "G0", "G0"
	for i := 1; i <= 21; i++ {
		name := fmt.Sprintf("G%d", i)
		src := fmt.Sprintf("module %s(a) -> out { %s(a) -> t0 %s(a) -> out }", name, prev, prev)
		if err := ctx.Compile([]byte(src)); err != nil {
			t.Fatalf("Compile %s: %v", name, err)
		}
		prev, last = name, name
	}

	_, err := ctx.InitModule(last)
	if err == nil {
		t.Fatalf("expected a memory error elaborating %q", last)
	}
	gerr, ok := err.(*Error)
	if !ok || gerr.Phase != PhaseMemory {
		t.Fatalf("err = %#v, want *Error{Phase: PhaseMemory}", err)
	}
}
