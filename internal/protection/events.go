package protection

import (
	"strings"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
)

// BlockChange covers breaking, placing and bucket use.
func (e *Evaluator) BlockChange(a Actor, p grid.ChunkPos) bool {
	c := e.claims.At(p)
	return e.bypassClaim(a, c) || c.Rules.AllowBlockBreak
}

// BlockInteract covers right clicks and physical triggers. Holding a
// placeable block is allowed where blocks may be placed.
func (e *Evaluator) BlockInteract(a Actor, p grid.ChunkPos, holdingBlock bool) bool {
	c := e.claims.At(p)
	if e.bypassClaim(a, c) || c.Rules.AllowBlockInteract {
		return true
	}
	return c.Rules.AllowBlockBreak && holdingBlock
}

// ProjectileHit decides whether a projectile may affect the block it hit.
// shooter is nil when no player fired it.
func (e *Evaluator) ProjectileHit(shooter *Actor, p grid.ChunkPos, fragile bool) bool {
	c := e.claims.At(p)
	if c == nil {
		return true
	}
	if shooter != nil && e.bypassClaim(*shooter, c) {
		return true
	}
	if !c.Rules.AllowBlockInteract {
		return false
	}
	return !fragile || c.Rules.AllowBlockBreak
}

// EntityInteract decides a right click on an entity standing in p.
func (e *Evaluator) EntityInteract(a Actor, ent Entity, p grid.ChunkPos) bool {
	if OwnsEntity(a, ent) {
		return true
	}
	c := e.claims.At(p)
	if e.bypassClaim(a, c) {
		return true
	}
	switch c.Rules.AllowEntityInteract {
	case claims.EntityDeny:
		return false
	case claims.EntityOnlyMounts:
		return Mountable(ent.Type)
	}
	return true
}

// EntityDamage decides damage to an entity standing in p. victim is set when
// the entity is a player; damager is the responsible player, if any.
func (e *Evaluator) EntityDamage(victim *Actor, ent Entity, damager *Actor, p grid.ChunkPos) bool {
	c := e.claims.At(p)
	if c == nil {
		return true
	}
	if victim != nil && e.bypassClaim(*victim, c) {
		return true
	}
	if damager != nil && e.bypassClaim(*damager, c) {
		return true
	}
	if c.Rules.AllowEntityInteract == claims.EntityAllow {
		return true
	}
	return damager != nil && OwnsEntity(*damager, ent)
}

// Target decides whether a mob may target a player standing in p.
func (e *Evaluator) Target(target Actor, p grid.ChunkPos) bool {
	c := e.claims.At(p)
	return e.bypassClaim(target, c) || c.Rules.AllowEntityInteract == claims.EntityAllow
}

// HangingBreak decides whether a player may break a frame, painting or
// leash knot in p.
func (e *Evaluator) HangingBreak(a Actor, p grid.ChunkPos) bool {
	return e.CanBypass(a, p)
}

// WorldEffect covers flow, fire spread, burning, growth, fertilizing and
// dispensing from one cell into another.
func (e *Evaluator) WorldEffect(from, to grid.ChunkPos) bool {
	return e.IsActionAllowed(from, to) || e.CheckAllowBlockBreak(to)
}

// Move is one block displaced by a piston.
type Move struct {
	From grid.ChunkPos
	To   grid.ChunkPos
}

// Piston decides whether a piston at piston may extend or retract. arm is
// the cell directly in front of it in the direction of motion.
func (e *Evaluator) Piston(piston, arm grid.ChunkPos, moves []Move) bool {
	if !e.IsActionAllowed(piston, arm) {
		return false
	}
	for _, m := range moves {
		if !e.IsActionAllowed(m.From, m.To) || !e.IsActionAllowed(piston, m.From) {
			return false
		}
	}
	return true
}

// ExplosionSource says what blew up.
type ExplosionSource uint8

const (
	SourceBlock ExplosionSource = iota
	SourceEntity
	SourceTNT
	SourceCreeper
)

func ParseExplosionSource(s string) ExplosionSource {
	switch s {
	case "TNT":
		return SourceTNT
	case "CREEPER":
		return SourceCreeper
	case "ENTITY":
		return SourceEntity
	}
	return SourceBlock
}

// Explosion returns the cells of an explosion that may be destroyed.
// igniter is the player who lit TNT; target is the player a creeper was
// chasing.
func (e *Evaluator) Explosion(src ExplosionSource, igniter, target *Actor, cells []grid.ChunkPos) []grid.ChunkPos {
	out := make([]grid.ChunkPos, 0, len(cells))
	for _, p := range cells {
		c := e.claims.At(p)
		if c == nil {
			out = append(out, p)
			continue
		}
		switch {
		case src == SourceTNT && igniter != nil:
			if e.bypassClaim(*igniter, c) {
				out = append(out, p)
			}
			continue
		case src == SourceCreeper && target != nil && e.bypassClaim(*target, c):
			out = append(out, p)
			continue
		}
		if c.Rules.AllowBlockBreak {
			out = append(out, p)
		}
	}
	return out
}

var mountables = map[string]struct{}{
	"HORSE":          {},
	"DONKEY":         {},
	"MULE":           {},
	"SKELETON_HORSE": {},
	"ZOMBIE_HORSE":   {},
	"CAMEL":          {},
	"LLAMA":          {},
	"TRADER_LLAMA":   {},
	"PIG":            {},
	"STRIDER":        {},
	"BOAT":           {},
	"MINECART":       {},
}

// Mountable reports whether an entity type can be ridden, including every
// boat, raft and minecart variant.
func Mountable(entityType string) bool {
	t := strings.ToUpper(entityType)
	if _, ok := mountables[t]; ok {
		return true
	}
	return strings.HasSuffix(t, "_BOAT") || strings.HasSuffix(t, "_RAFT") || strings.HasSuffix(t, "_MINECART") || strings.HasPrefix(t, "MINECART_")
}
