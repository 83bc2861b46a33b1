package territory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/protocol"
)

// negotiateMerge handles a claim on a cell touching several claims of actor.
// The first attempt only records a proposal; repeating the claim on the same
// cell within the merge window executes it. Proposals expire lazily.
func (s *Service) negotiateMerge(ctx context.Context, actor uuid.UUID, p grid.ChunkPos, adj []*claims.Claim) (Result, error) {
	now := s.now()
	if pm, found := s.pending[actor]; found && pm.cell == p && now.Sub(pm.at) <= s.window {
		res, err := s.merge(ctx, actor, p, adj)
		if err != nil {
			return res, err
		}
		delete(s.pending, actor)
		return res, nil
	}

	ids := make([]claims.ID, 0, len(adj))
	for _, c := range adj {
		ids = append(ids, c.ID)
	}
	s.pending[actor] = pendingMerge{cell: p, candidates: ids, at: now}
	return Result{
		Code:    protocol.CodeConfirmMerge,
		Message: "Claiming this chunk would merge your claims, keeping the settings of the oldest one. Claim it again to confirm.",
		ClaimID: ids[0],
		Count:   len(ids),
	}, nil
}

// PendingMerge returns the candidate claims of actor's open merge proposal.
func (s *Service) PendingMerge(actor uuid.UUID) (grid.ChunkPos, []claims.ID, bool) {
	pm, found := s.pending[actor]
	if !found || s.now().Sub(pm.at) > s.window {
		return grid.ChunkPos{}, nil, false
	}
	return pm.cell, append([]claims.ID(nil), pm.candidates...), true
}

// merge folds every candidate into the one with the lowest id and adds the
// triggering cell to it. adj must be ordered by id. The survivor keeps its
// id, owner and rules; donor rules are discarded and donor trust grants are
// added unless the survivor already trusts that player.
func (s *Service) merge(ctx context.Context, actor uuid.UUID, p grid.ChunkPos, adj []*claims.Claim) (Result, error) {
	main, donors := adj[0], adj[1:]

	type donorGrants struct {
		donor  *claims.Claim
		grants []claims.Grant
	}
	var plan []donorGrants
	seen := map[uuid.UUID]struct{}{}
	for _, d := range donors {
		var gs []claims.Grant
		for _, g := range main.MissingGrants(d) {
			if _, dup := seen[g.Player]; dup {
				continue
			}
			seen[g.Player] = struct{}{}
			gs = append(gs, g)
		}
		plan = append(plan, donorGrants{donor: d, grants: gs})
	}

	err := s.store.Atomic(ctx, func(tx Store) error {
		for _, step := range plan {
			if err := tx.MoveChunks(ctx, step.donor.ID, main.ID); err != nil {
				return err
			}
			for _, g := range step.grants {
				if err := tx.AddTrust(ctx, main.ID, g.Player, g.Kind); err != nil {
					return err
				}
			}
			if err := tx.DeleteClaim(ctx, step.donor.ID); err != nil {
				return err
			}
		}
		return tx.AddChunk(ctx, main.ID, p)
	})
	if err != nil {
		return Result{}, fmt.Errorf("merge into claim %d: %w", main.ID, err)
	}

	merged := make([]int64, 0, len(donors))
	for _, d := range donors {
		world := d.World()
		if err := s.reg.Absorb(main, d); err != nil {
			return Result{}, s.defect("absorb claim", err)
		}
		s.render.Remove(d.ID, world)
		merged = append(merged, int64(d.ID))
	}
	if err := s.reg.AddChunk(main, p); err != nil {
		return Result{}, s.defect("add merge cell", err)
	}
	s.render.Update(main)
	s.record(actor, "MERGE", p, main.ID, map[string]any{"merged": merged})

	res := ok(main.ID, "Merged your claims.")
	res.Count = len(donors)
	return res, nil
}
