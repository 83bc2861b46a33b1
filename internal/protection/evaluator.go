// Package protection decides whether an actor may act on a cell. Every
// enforcement path reduces to a few calls against Evaluator.
package protection

import (
	"github.com/google/uuid"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
)

type Mode uint8

const (
	Survival Mode = iota
	Adventure
	Creative
	Spectator
)

// ParseMode maps host game mode names; unknown names are Survival.
func ParseMode(s string) Mode {
	switch s {
	case "ADVENTURE":
		return Adventure
	case "CREATIVE":
		return Creative
	case "SPECTATOR":
		return Spectator
	}
	return Survival
}

// Privileged modes bypass every claim.
func (m Mode) Privileged() bool { return m == Creative || m == Spectator }

type Actor struct {
	ID   uuid.UUID
	Mode Mode
}

// Entity describes the creature or vehicle an event is about.
type Entity struct {
	Type     string
	Owner    uuid.UUID
	Tameable bool
}

// Lookup resolves the claim at a cell. *claims.Registry implements it.
type Lookup interface {
	At(p grid.ChunkPos) *claims.Claim
}

type Presence interface {
	IsOnline(id uuid.UUID) bool
}

type Evaluator struct {
	claims Lookup
	online Presence
}

func NewEvaluator(claims Lookup, online Presence) *Evaluator {
	return &Evaluator{claims: claims, online: online}
}

// CanBypass reports whether a is exempt from the rules of the claim at p.
func (e *Evaluator) CanBypass(a Actor, p grid.ChunkPos) bool {
	if a.Mode.Privileged() {
		return true
	}
	return e.bypassClaim(a, e.claims.At(p))
}

func (e *Evaluator) bypassClaim(a Actor, c *claims.Claim) bool {
	if a.Mode.Privileged() || c == nil || c.Owner == a.ID {
		return true
	}
	switch k, _ := c.TrustOf(a.ID); k {
	case claims.TrustAlways:
		return true
	case claims.TrustWhileOnline:
		return e.online != nil && e.online.IsOnline(c.Owner)
	}
	return false
}

// IsActionAllowed reports whether a world effect may travel from one cell to
// another: both must resolve to the same claim, or both be unclaimed.
func (e *Evaluator) IsActionAllowed(from, to grid.ChunkPos) bool {
	return claimID(e.claims.At(from)) == claimID(e.claims.At(to))
}

// CheckAllowBlockBreak is true for unclaimed cells and otherwise follows the
// claim's allowBlockBreak rule.
func (e *Evaluator) CheckAllowBlockBreak(p grid.ChunkPos) bool {
	c := e.claims.At(p)
	return c == nil || c.Rules.AllowBlockBreak
}

// OwnsEntity reports whether ent is a tamed creature owned by a.
func OwnsEntity(a Actor, ent Entity) bool {
	return ent.Tameable && ent.Owner != uuid.Nil && ent.Owner == a.ID
}

func claimID(c *claims.Claim) claims.ID {
	if c == nil {
		return 0
	}
	return c.ID
}
