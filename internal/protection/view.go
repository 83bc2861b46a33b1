package protection

import (
	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
)

// View holds the client-side restrictions and command visibility for an
// actor standing in a cell.
type View struct {
	Bypass        bool
	Adventure     bool
	NoBlockReach  bool
	NoEntityReach bool
	NoCollide     bool
	DropAggro     bool

	CanClaim        bool
	IsOwner         bool
	CanRemovePlayer bool
}

// View computes the restrictions for a standing in p. underChunkLimit says
// whether a may claim another cell.
func (e *Evaluator) View(a Actor, p grid.ChunkPos, underChunkLimit bool) View {
	c := e.claims.At(p)
	var v View
	v.CanClaim = c == nil && underChunkLimit
	v.IsOwner = c != nil && c.Owner == a.ID
	v.CanRemovePlayer = v.IsOwner && c.HasTrusted()

	if e.bypassClaim(a, c) {
		v.Bypass = true
		return v
	}
	switch {
	case !c.Rules.AllowBlockBreak && c.Rules.AllowBlockInteract:
		v.Adventure = true
	case !c.Rules.AllowBlockBreak:
		v.NoBlockReach = true
	}
	switch c.Rules.AllowEntityInteract {
	case claims.EntityDeny:
		v.DropAggro = true
		v.NoEntityReach = true
		v.NoCollide = true
	case claims.EntityOnlyMounts:
		v.DropAggro = true
		v.NoCollide = true
	}
	return v
}
