package arena

import "testing"

func TestAllocStable(t *testing.T) {
	a := New[int]()
	s1 := a.Alloc(4)
	s1[0] = 1
	s2 := a.Alloc(200) // forces a new, larger chunk
	s2[0] = 2
	if s1[0] != 1 {
		t.Fatalf("earlier allocation clobbered: got %d want 1", s1[0])
	}
	if s2[0] != 2 {
		t.Fatalf("later allocation wrong: got %d want 2", s2[0])
	}
}

func TestGrowInPlace(t *testing.T) {
	a := New[byte]()
	s := a.Alloc(4)
	copy(s, []byte{1, 2, 3, 4})
	grown := a.Grow(s, 4)
	if len(grown) != 8 {
		t.Fatalf("Grow length = %d, want 8", len(grown))
	}
	for i := 0; i < 4; i++ {
		if grown[i] != byte(i+1) {
			t.Fatalf("Grow lost original data at %d: got %d", i, grown[i])
		}
	}
}

func TestGrowSpillsToNewChunk(t *testing.T) {
	a := New[byte]()
	s := a.Alloc(defaultChunkCap)
	// nothing left in this chunk; growing must allocate fresh and copy
	grown := a.Grow(s, 1)
	if len(grown) != defaultChunkCap+1 {
		t.Fatalf("len = %d, want %d", len(grown), defaultChunkCap+1)
	}
}

func TestRelease(t *testing.T) {
	a := New[int]()
	a.Alloc(10)
	a.Release()
	if len(a.chunks) != 0 {
		t.Fatalf("Release left %d chunks", len(a.chunks))
	}
}
