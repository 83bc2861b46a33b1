package engine

import (
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/protection"
	"bonfire.gg/internal/protocol"
)

// check answers one protection question. Cells default to the request
// position.
func (e *Engine) check(req protocol.Request) protocol.Response {
	ck := req.Check
	if ck == nil {
		return protocol.Fail(req, protocol.ErrBadRequest, "missing check")
	}
	a := actorOf(req)
	p := cellFrom(ck.Cell, cellOf(req))
	resp := protocol.Reply(req)
	resp.OK = true

	var allowed bool
	switch ck.Kind {
	case protocol.CheckBypass:
		allowed = e.eval.CanBypass(a, p)
	case protocol.CheckBlockChange:
		allowed = e.eval.BlockChange(a, p)
	case protocol.CheckBlockInteract:
		allowed = e.eval.BlockInteract(a, p, ck.HoldingBlock)
	case protocol.CheckProjectileHit:
		// The shooting player, if any, travels as damager.
		allowed = e.eval.ProjectileHit(actorRef(ck.Damager), p, ck.Fragile)
	case protocol.CheckEntityInteract:
		allowed = e.eval.EntityInteract(a, entityOf(ck.Entity), p)
	case protocol.CheckEntityDamage:
		allowed = e.eval.EntityDamage(actorRef(ck.VictimPlayer), entityOf(ck.Entity), actorRef(ck.Damager), p)
	case protocol.CheckTarget:
		target := a
		if t := actorRef(ck.Target); t != nil {
			target = *t
		}
		allowed = e.eval.Target(target, p)
	case protocol.CheckHangingBreak:
		allowed = e.eval.HangingBreak(a, p)
	case protocol.CheckWorldEffect:
		if ck.From == nil || ck.To == nil {
			return protocol.Fail(req, protocol.ErrBadRequest, "WORLD_EFFECT needs from and to")
		}
		allowed = e.eval.WorldEffect(cellFrom(ck.From, p), cellFrom(ck.To, p))
	case protocol.CheckPiston:
		if ck.Arm == nil {
			return protocol.Fail(req, protocol.ErrBadRequest, "PISTON needs arm")
		}
		moves := make([]protection.Move, 0, len(ck.Moves))
		for _, m := range ck.Moves {
			moves = append(moves, protection.Move{From: cellFrom(&m.From, p), To: cellFrom(&m.To, p)})
		}
		allowed = e.eval.Piston(p, cellFrom(ck.Arm, p), moves)
	case protocol.CheckExplosion:
		cells := make([]grid.ChunkPos, 0, len(ck.Cells))
		for i := range ck.Cells {
			cells = append(cells, cellFrom(&ck.Cells[i], p))
		}
		kept := e.eval.Explosion(protection.ParseExplosionSource(ck.Source), actorRef(ck.Igniter), actorRef(ck.Target), cells)
		resp.Cells = make([]protocol.Cell, 0, len(kept))
		for _, c := range kept {
			resp.Cells = append(resp.Cells, protocol.Cell{World: c.World, X: c.X(), Z: c.Z()})
		}
		allowed = len(kept) == len(cells)
	case protocol.CheckView:
		lim := e.policy.Limits(a.ID)
		v := e.eval.View(a, p, e.reg.OwnedChunkCount(a.ID) < lim.MaxChunks)
		resp.View = &protocol.View{
			Bypass:          v.Bypass,
			Adventure:       v.Adventure,
			NoBlockReach:    v.NoBlockReach,
			NoEntityReach:   v.NoEntityReach,
			NoCollide:       v.NoCollide,
			DropAggro:       v.DropAggro,
			CanClaim:        v.CanClaim,
			IsOwner:         v.IsOwner,
			CanRemovePlayer: v.CanRemovePlayer,
		}
		if c := e.reg.At(p); c != nil {
			resp.View.OwnerName = e.dir.Name(c.Owner)
		}
		return resp
	default:
		return protocol.Fail(req, protocol.ErrBadRequest, "unknown check kind "+ck.Kind)
	}
	resp.Allowed = &allowed
	return resp
}

func entityOf(r *protocol.EntityRef) protection.Entity {
	if r == nil {
		return protection.Entity{}
	}
	return protection.Entity{Type: r.Type, Owner: r.Owner, Tameable: r.Tameable}
}
