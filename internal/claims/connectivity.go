package claims

import "bonfire.gg/internal/grid"

// StaysConnected reports whether the cells of c, minus removed, still form a
// single edge-connected region. It does not mutate c.
func StaysConnected(c *Claim, removed grid.ChunkPos) bool {
	return connected(c, removed, true)
}

// Connected reports whether every cell of c is reachable from every other.
func Connected(c *Claim) bool {
	return connected(c, grid.ChunkPos{}, false)
}

func connected(c *Claim, removed grid.ChunkPos, skip bool) bool {
	excluded := func(p grid.ChunkPos) bool { return skip && p == removed }

	remaining := c.Len()
	if skip && c.Contains(removed) {
		remaining--
	}
	if remaining <= 0 {
		return true
	}

	var start grid.ChunkPos
	for p := range c.chunks {
		if !excluded(p) {
			start = p
			break
		}
	}

	visited := make(map[grid.ChunkPos]struct{}, remaining)
	visited[start] = struct{}{}
	queue := []grid.ChunkPos{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range cur.Neighbors() {
			if excluded(n) || !c.Contains(n) {
				continue
			}
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			queue = append(queue, n)
		}
	}
	return len(visited) == remaining
}
