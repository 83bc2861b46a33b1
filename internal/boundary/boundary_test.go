package boundary

import (
	"testing"

	"github.com/google/uuid"

	"bonfire.gg/internal/grid"
)

func cellsOf(xz ...[2]int32) []grid.ChunkPos {
	w := uuid.New()
	out := make([]grid.ChunkPos, 0, len(xz))
	for _, p := range xz {
		out = append(out, grid.At(w, p[0], p[1]))
	}
	return out
}

func sameLoop(got, want Loop) bool {
	if len(got) != len(want) {
		return false
	}
	for off := range got {
		match := true
		for i := range want {
			if got[(i+off)%len(got)] != want[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestTraceSingleCell(t *testing.T) {
	poly, ok := Trace(cellsOf([2]int32{3, -2}))
	if !ok {
		t.Fatalf("expected a polygon")
	}
	want := Loop{{3, -2}, {4, -2}, {4, -1}, {3, -1}}
	if !sameLoop(poly.Outer, want) || len(poly.Holes) != 0 {
		t.Fatalf("got %+v", poly)
	}
	if poly.Outer.Area2() != 2 {
		t.Fatalf("outer must be positively oriented, area2=%d", poly.Outer.Area2())
	}
	blocks := poly.Outer.Blocks()
	if blocks[0] != [2]float64{48, -32} {
		t.Fatalf("block scaling: %v", blocks)
	}
}

func TestTraceRingHasOneHole(t *testing.T) {
	var ring [][2]int32
	for z := int32(0); z < 3; z++ {
		for x := int32(0); x < 3; x++ {
			if x == 1 && z == 1 {
				continue
			}
			ring = append(ring, [2]int32{x, z})
		}
	}
	poly, ok := Trace(cellsOf(ring...))
	if !ok {
		t.Fatalf("expected a polygon")
	}
	if !sameLoop(poly.Outer, Loop{{0, 0}, {3, 0}, {3, 3}, {0, 3}}) {
		t.Fatalf("outer=%v", poly.Outer)
	}
	if len(poly.Holes) != 1 {
		t.Fatalf("holes=%v", poly.Holes)
	}
	if !sameLoop(poly.Holes[0], Loop{{1, 1}, {1, 2}, {2, 2}, {2, 1}}) {
		t.Fatalf("hole=%v", poly.Holes[0])
	}
	if poly.Holes[0].Area2() != -2 {
		t.Fatalf("hole must be negatively oriented")
	}
}

func TestTraceLShapeDropsCollinearPoints(t *testing.T) {
	poly, ok := Trace(cellsOf(
		[2]int32{0, 0}, [2]int32{0, 1}, [2]int32{0, 2},
		[2]int32{1, 2}, [2]int32{2, 2},
	))
	if !ok {
		t.Fatalf("expected a polygon")
	}
	want := Loop{{0, 0}, {1, 0}, {1, 2}, {3, 2}, {3, 3}, {0, 3}}
	if !sameLoop(poly.Outer, want) || len(poly.Holes) != 0 {
		t.Fatalf("got %+v", poly)
	}
}

// A hole touching the outside at one corner must not be merged into the
// outer loop.
func TestTracePinchedHoleStaysSeparate(t *testing.T) {
	poly, ok := Trace(cellsOf(
		[2]int32{-1, -1}, [2]int32{0, -1}, [2]int32{1, -1}, [2]int32{2, -1},
		[2]int32{-1, 0}, [2]int32{0, 0}, [2]int32{2, 0},
		[2]int32{1, 1}, [2]int32{2, 1},
	))
	if !ok {
		t.Fatalf("expected a polygon")
	}
	if len(poly.Holes) != 1 {
		t.Fatalf("holes=%v outer=%v", poly.Holes, poly.Outer)
	}
	if !sameLoop(poly.Holes[0], Loop{{1, 0}, {1, 1}, {2, 1}, {2, 0}}) {
		t.Fatalf("hole=%v", poly.Holes[0])
	}
	if poly.Outer.Area2() <= 0 || poly.Holes[0].Area2() >= 0 {
		t.Fatalf("orientation outer=%d hole=%d", poly.Outer.Area2(), poly.Holes[0].Area2())
	}
	// 9 cells of area plus the 1 cell hole inside the outer loop.
	if poly.Outer.Area2() != 2*10 {
		t.Fatalf("outer area2=%d", poly.Outer.Area2())
	}
}

func TestTraceEmpty(t *testing.T) {
	if _, ok := Trace(nil); ok {
		t.Fatalf("empty input must yield nothing")
	}
}
