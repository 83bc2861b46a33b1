package territory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/protocol"
)

// Operator overrides. They ignore limits and ownership; the engine checks
// that the caller is an operator.

func (s *Service) AdminSetOwner(ctx context.Context, actor uuid.UUID, p grid.ChunkPos, target string) (Result, error) {
	c := s.reg.At(p)
	if c == nil {
		return reject(protocol.ErrNotClaimed, "Nothing changed, you aren't inside a claimed chunk."), nil
	}
	owner, found := s.players.Resolve(target)
	if !found {
		return reject(protocol.ErrPlayerNotFound, "Nothing changed, that player wasn't found on the server."), nil
	}
	prev := c.Owner
	if err := s.store.UpdateOwner(ctx, c.ID, owner); err != nil {
		return Result{}, fmt.Errorf("update owner of claim %d: %w", c.ID, err)
	}
	if err := s.reg.SetOwner(c, owner); err != nil {
		return Result{}, s.defect("set owner", err)
	}
	s.render.Update(c)
	s.record(actor, "SET_OWNER", p, c.ID, map[string]any{"from": prev.String(), "to": owner.String()})
	return ok(c.ID, fmt.Sprintf("Transferred the ownership of this claim to %s.", target)), nil
}

func (s *Service) AdminRemoveClaim(ctx context.Context, actor uuid.UUID, p grid.ChunkPos) (Result, error) {
	c := s.reg.At(p)
	if c == nil {
		return reject(protocol.ErrNotClaimed, "Nothing changed, you aren't inside a claim."), nil
	}
	if err := s.deleteClaim(ctx, actor, c, "ADMIN_REMOVE_CLAIM"); err != nil {
		return Result{}, err
	}
	return ok(c.ID, "Removed the claim and unclaimed all chunks."), nil
}

// AdminUnclaim removes one cell from any claim, under the same connectivity
// rule as Unclaim.
func (s *Service) AdminUnclaim(ctx context.Context, actor uuid.UUID, p grid.ChunkPos) (Result, error) {
	c := s.reg.At(p)
	if c == nil {
		return reject(protocol.ErrNotClaimed, "Nothing changed, you aren't inside a claim."), nil
	}
	return s.removeCell(ctx, actor, c, p, "ADMIN_UNCLAIM")
}

// AdminRemoveAll deletes every claim owned by target in one transaction.
func (s *Service) AdminRemoveAll(ctx context.Context, actor uuid.UUID, target string) (Result, error) {
	owner, found := s.players.Resolve(target)
	if !found {
		return reject(protocol.ErrPlayerNotFound, "Nothing changed, that player wasn't found on the server."), nil
	}
	owned := s.reg.OwnedBy(owner)
	if len(owned) == 0 {
		return reject(protocol.ErrNoClaims, "Nothing changed, this player has no claims."), nil
	}
	err := s.store.Atomic(ctx, func(tx Store) error {
		for _, c := range owned {
			if err := tx.DeleteClaim(ctx, c.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("remove claims of %s: %w", owner, err)
	}
	ids := make([]int64, 0, len(owned))
	for _, c := range owned {
		world := c.World()
		s.reg.Remove(c)
		s.render.Remove(c.ID, world)
		ids = append(ids, int64(c.ID))
	}
	s.writeAudit(AuditEntry{
		Actor:   actor.String(),
		Action:  "ADMIN_REMOVE_ALL",
		Details: map[string]any{"owner": owner.String(), "claims": ids},
	})
	res := ok(0, fmt.Sprintf("Removed %d claims owned by %s and unclaimed all chunks.", len(owned), target))
	res.Count = len(owned)
	return res, nil
}
