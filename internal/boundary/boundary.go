// Package boundary converts a claim's cells into a closed outline for map
// rendering: one outer loop plus one loop per enclosed gap.
//
// Coordinates are exact integers in cell units (a cell at (x, z) spans
// [x, x+1] x [z, z+1]); Loop.Blocks scales them to block coordinates. With
// z growing downwards, every loop keeps the claimed area on its right-hand
// side, so the outer loop has positive signed area and holes negative.
package boundary

import (
	"sort"

	"bonfire.gg/internal/grid"
)

type Point struct {
	X int64
	Z int64
}

func (p Point) less(q Point) bool {
	if p.Z != q.Z {
		return p.Z < q.Z
	}
	return p.X < q.X
}

type Loop []Point

// Area2 returns twice the signed area of the loop.
func (l Loop) Area2() int64 {
	var sum int64
	for i, p := range l {
		q := l[(i+1)%len(l)]
		sum += p.X*q.Z - q.X*p.Z
	}
	return sum
}

// Blocks returns the loop in block coordinates.
func (l Loop) Blocks() [][2]float64 {
	out := make([][2]float64, len(l))
	for i, p := range l {
		out[i] = [2]float64{float64(p.X * grid.CellSize), float64(p.Z * grid.CellSize)}
	}
	return out
}

func (l Loop) minX() int64 {
	m := l[0].X
	for _, p := range l[1:] {
		if p.X < m {
			m = p.X
		}
	}
	return m
}

type Polygon struct {
	Outer Loop
	Holes []Loop
}

type dir struct{ dx, dz int64 }

type edge struct {
	from, to Point
}

func (e edge) dir() dir { return dir{e.to.X - e.from.X, e.to.Z - e.from.Z} }

// Trace outlines cells, which must all belong to one world. It returns false
// when there is nothing to render.
func Trace(cells []grid.ChunkPos) (Polygon, bool) {
	loops := loopsOf(edgesOf(cells))
	if len(loops) == 0 {
		return Polygon{}, false
	}
	for i := range loops {
		loops[i] = simplify(loops[i])
	}

	outer := 0
	for i := 1; i < len(loops); i++ {
		if betterOuter(loops[i], loops[outer]) {
			outer = i
		}
	}
	poly := Polygon{Outer: loops[outer]}
	for i, l := range loops {
		if i != outer {
			poly.Holes = append(poly.Holes, l)
		}
	}
	return poly, true
}

// betterOuter orders outer candidates: lowest x first, then positive
// orientation, then larger area.
func betterOuter(a, b Loop) bool {
	if ax, bx := a.minX(), b.minX(); ax != bx {
		return ax < bx
	}
	aa, ba := a.Area2(), b.Area2()
	if (aa > 0) != (ba > 0) {
		return aa > 0
	}
	return abs(aa) > abs(ba)
}

// edgesOf emits one directed unit edge per cell side that faces a cell
// outside the set: north west to east, east north to south, south east to
// west and west south to north.
func edgesOf(cells []grid.ChunkPos) []edge {
	set := make(map[grid.Key]struct{}, len(cells))
	for _, c := range cells {
		set[c.Key] = struct{}{}
	}
	has := func(x, z int64) bool {
		_, ok := set[grid.Pack(int32(x), int32(z))]
		return ok
	}
	var edges []edge
	for k := range set {
		x, z := int64(k.X()), int64(k.Z())
		if !has(x, z-1) {
			edges = append(edges, edge{Point{x, z}, Point{x + 1, z}})
		}
		if !has(x+1, z) {
			edges = append(edges, edge{Point{x + 1, z}, Point{x + 1, z + 1}})
		}
		if !has(x, z+1) {
			edges = append(edges, edge{Point{x + 1, z + 1}, Point{x, z + 1}})
		}
		if !has(x-1, z) {
			edges = append(edges, edge{Point{x, z + 1}, Point{x, z}})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from != edges[j].from {
			return edges[i].from.less(edges[j].from)
		}
		return edges[i].to.less(edges[j].to)
	})
	return edges
}

// loopsOf stitches edges into closed loops. Where boundaries meet at a corner
// the walk turns left, so diagonally touching cells stay on one loop and a
// hole touching the outside at a corner keeps its own loop.
func loopsOf(edges []edge) []Loop {
	out := map[Point][]int{}
	for i, e := range edges {
		out[e.from] = append(out[e.from], i)
	}
	used := make([]bool, len(edges))

	var loops []Loop
	for start := range edges {
		if used[start] {
			continue
		}
		used[start] = true
		origin := edges[start].from
		loop := Loop{origin}
		cur := edges[start]
		closed := false
		for {
			cands := unused(out[cur.to], used)
			if cur.to == origin {
				cands = append(cands, start)
			}
			next := pick(edges, cands, cur.dir())
			if next < 0 {
				break // dangling edge; drop the partial loop
			}
			if next == start {
				closed = true
				break
			}
			used[next] = true
			loop = append(loop, cur.to)
			cur = edges[next]
		}
		if closed {
			loops = append(loops, loop)
		}
	}
	return loops
}

func unused(idx []int, used []bool) []int {
	var out []int
	for _, i := range idx {
		if !used[i] {
			out = append(out, i)
		}
	}
	return out
}

// pick prefers a left turn, then straight on, then a right turn.
func pick(edges []edge, cands []int, in dir) int {
	best, bestRank := -1, 4
	for _, i := range cands {
		r := turnRank(in, edges[i].dir())
		if r < bestRank || (r == bestRank && best >= 0 && i < best) {
			best, bestRank = i, r
		}
	}
	return best
}

func turnRank(in, out dir) int {
	switch out {
	case dir{in.dz, -in.dx}:
		return 0
	case in:
		return 1
	case dir{-in.dz, in.dx}:
		return 2
	}
	return 3
}

// simplify drops every vertex where the loop continues in a straight line.
func simplify(l Loop) Loop {
	n := len(l)
	if n < 3 {
		return l
	}
	out := make(Loop, 0, n)
	for i, p := range l {
		prev := l[(i+n-1)%n]
		next := l[(i+1)%n]
		if (prev.X == p.X && p.X == next.X) || (prev.Z == p.Z && p.Z == next.Z) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
