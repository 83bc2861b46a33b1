package grid

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestPackRoundTrip(t *testing.T) {
	cases := [][2]int32{
		{0, 0},
		{1, -1},
		{-1, 1},
		{-30000, 12345},
		{math.MaxInt32, math.MinInt32},
		{math.MinInt32, math.MaxInt32},
	}
	for _, c := range cases {
		k := Pack(c[0], c[1])
		if k.X() != c[0] || k.Z() != c[1] {
			t.Fatalf("round trip (%d,%d): got (%d,%d)", c[0], c[1], k.X(), k.Z())
		}
	}
}

func TestPackLayout(t *testing.T) {
	// lower 32 bits = x, upper 32 bits = z
	if got := Pack(5, 0); got != 5 {
		t.Fatalf("Pack(5,0)=%d", got)
	}
	if got := Pack(0, 1); got != 1<<32 {
		t.Fatalf("Pack(0,1)=%d", got)
	}
	if got := Pack(-1, 0); got != 0xFFFFFFFF {
		t.Fatalf("Pack(-1,0)=%d want %d", got, int64(0xFFFFFFFF))
	}
}

func TestFromBlock(t *testing.T) {
	w := uuid.New()
	cases := []struct {
		bx, bz int
		x, z   int32
	}{
		{0, 0, 0, 0},
		{15, 15, 0, 0},
		{16, 31, 1, 1},
		{-1, -16, -1, -1},
		{-17, 0, -2, 0},
	}
	for _, c := range cases {
		p := FromBlock(w, c.bx, c.bz)
		if p.X() != c.x || p.Z() != c.z || p.World != w {
			t.Fatalf("FromBlock(%d,%d)=%v want (%d,%d)", c.bx, c.bz, p, c.x, c.z)
		}
	}
}

func TestNeighborsAndAdjacent(t *testing.T) {
	w := uuid.New()
	p := At(w, 3, -2)
	for _, n := range p.Neighbors() {
		if !p.Adjacent(n) {
			t.Fatalf("%v should be adjacent to %v", n, p)
		}
	}
	if p.Adjacent(At(w, 4, -1)) {
		t.Fatalf("diagonal cell must not be adjacent")
	}
	if p.Adjacent(At(uuid.New(), 4, -2)) {
		t.Fatalf("cells in different worlds must not be adjacent")
	}
	if p.Adjacent(p) {
		t.Fatalf("cell must not be adjacent to itself")
	}
}
