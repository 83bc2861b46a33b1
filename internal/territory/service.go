// Package territory implements the claim lifecycle: claiming and unclaiming
// cells, merge negotiation, rule and trust changes, and operator overrides.
//
// Every mutation follows the same order: policy checks against the registry,
// the durable write, then the registry update. A failed write leaves memory
// untouched.
package territory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/protocol"
)

// DefaultMergeWindow is how long a merge proposal stays confirmable.
const DefaultMergeWindow = 15 * time.Second

// Result is the outcome of a lifecycle call. A result with OK unset is a
// policy rejection: nothing changed and Code says why.
type Result struct {
	OK      bool
	Code    string
	Message string
	ClaimID claims.ID
	Count   int
}

func ok(id claims.ID, msg string) Result { return Result{OK: true, ClaimID: id, Message: msg} }

func reject(code, msg string) Result { return Result{Code: code, Message: msg} }

type Config struct {
	Registry *claims.Registry
	Store    Store
	Limits   LimitSource
	Players  Resolver

	Renderer Renderer // optional
	Audit    Auditor  // optional
	Logger   *log.Logger

	Now          func() time.Time
	MergeWindow  time.Duration
	DefaultRules claims.Rules
}

type pendingMerge struct {
	cell       grid.ChunkPos
	candidates []claims.ID
	at         time.Time
}

// Service is not safe for concurrent use. The engine serializes all calls.
type Service struct {
	reg     *claims.Registry
	store   Store
	limits  LimitSource
	players Resolver
	render  Renderer
	audit   Auditor
	logger  *log.Logger
	now     func() time.Time

	window       time.Duration
	defaultRules claims.Rules
	pending      map[uuid.UUID]pendingMerge
}

func New(cfg Config) (*Service, error) {
	if cfg.Registry == nil || cfg.Store == nil || cfg.Limits == nil || cfg.Players == nil {
		return nil, fmt.Errorf("territory: registry, store, limits and players are required")
	}
	s := &Service{
		reg:          cfg.Registry,
		store:        cfg.Store,
		limits:       cfg.Limits,
		players:      cfg.Players,
		render:       cfg.Renderer,
		audit:        cfg.Audit,
		logger:       cfg.Logger,
		now:          cfg.Now,
		window:       cfg.MergeWindow,
		defaultRules: cfg.DefaultRules,
		pending:      map[uuid.UUID]pendingMerge{},
	}
	if s.render == nil {
		s.render = nopRenderer{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.window <= 0 {
		s.window = DefaultMergeWindow
	}
	return s, nil
}

func (s *Service) SetDefaultRules(r claims.Rules) { s.defaultRules = r }

func (s *Service) DefaultRules() claims.Rules { return s.defaultRules }

func (s *Service) SetMergeWindow(d time.Duration) {
	if d > 0 {
		s.window = d
	}
}

// Claim claims cell p for actor. The cell either extends the single adjacent
// claim of actor, starts a merge negotiation when it touches several, or
// founds a new claim.
func (s *Service) Claim(ctx context.Context, actor uuid.UUID, p grid.ChunkPos) (Result, error) {
	if s.reg.At(p) != nil {
		return reject(protocol.ErrAlreadyClaimed, "This chunk is already claimed."), nil
	}
	lim := s.limits.Limits(actor)
	if s.reg.OwnedChunkCount(actor) >= lim.MaxChunks {
		return reject(protocol.ErrChunkLimit, "You've reached your chunk limit."), nil
	}

	adj := s.reg.AdjacentOwned(actor, p)
	switch {
	case len(adj) == 1:
		return s.extend(ctx, actor, adj[0], p)
	case len(adj) > 1:
		return s.negotiateMerge(ctx, actor, p, adj)
	}

	if s.reg.OwnedClaimCount(actor) >= lim.MaxClaims {
		return reject(protocol.ErrClaimLimit, "You've reached your claim limit."), nil
	}
	return s.found(ctx, actor, p)
}

func (s *Service) extend(ctx context.Context, actor uuid.UUID, c *claims.Claim, p grid.ChunkPos) (Result, error) {
	if err := s.store.AddChunk(ctx, c.ID, p); err != nil {
		return Result{}, fmt.Errorf("add chunk to claim %d: %w", c.ID, err)
	}
	if err := s.reg.AddChunk(c, p); err != nil {
		return Result{}, s.defect("add chunk", err)
	}
	s.render.Update(c)
	s.record(actor, "CLAIM", p, c.ID, nil)
	return ok(c.ID, "Claimed this chunk and added it to your claim."), nil
}

func (s *Service) found(ctx context.Context, actor uuid.UUID, p grid.ChunkPos) (Result, error) {
	rules := s.defaultRules
	var id claims.ID
	err := s.store.Atomic(ctx, func(tx Store) error {
		var err error
		if id, err = tx.CreateClaim(ctx, actor, rules); err != nil {
			return err
		}
		return tx.AddChunk(ctx, id, p)
	})
	if err != nil {
		return Result{}, fmt.Errorf("create claim: %w", err)
	}
	c := claims.New(id, actor, rules, p)
	if err := s.reg.Add(c); err != nil {
		return Result{}, s.defect("register claim", err)
	}
	s.render.Update(c)
	s.record(actor, "CREATE", p, id, nil)
	return ok(id, "Claimed this chunk and created a new claim."), nil
}

// Unclaim removes cell p from the claim holding it, deleting the claim when
// p is its last cell. Removals that would split the claim are rejected.
func (s *Service) Unclaim(ctx context.Context, actor uuid.UUID, p grid.ChunkPos) (Result, error) {
	c := s.reg.At(p)
	if c == nil {
		return reject(protocol.ErrNotClaimed, "This chunk isn't claimed."), nil
	}
	return s.removeCell(ctx, actor, c, p, "UNCLAIM")
}

func (s *Service) removeCell(ctx context.Context, actor uuid.UUID, c *claims.Claim, p grid.ChunkPos, action string) (Result, error) {
	if c.Len() <= 1 {
		if err := s.deleteClaim(ctx, actor, c, action); err != nil {
			return Result{}, err
		}
		return ok(c.ID, "Unclaimed this chunk and deleted the claim."), nil
	}
	if !claims.StaysConnected(c, p) {
		return reject(protocol.ErrWouldSplit, "Unclaiming this chunk would split up the claim; unclaim outer chunks first."), nil
	}
	if err := s.store.RemoveChunk(ctx, c.ID, p); err != nil {
		return Result{}, fmt.Errorf("remove chunk from claim %d: %w", c.ID, err)
	}
	if err := s.reg.RemoveChunk(c, p); err != nil {
		return Result{}, s.defect("remove chunk", err)
	}
	s.render.Update(c)
	s.record(actor, action, p, c.ID, nil)
	return ok(c.ID, "Unclaimed this chunk and removed it from the claim."), nil
}

func (s *Service) deleteClaim(ctx context.Context, actor uuid.UUID, c *claims.Claim, action string) error {
	world := c.World()
	chunks := c.Len()
	if err := s.store.DeleteClaim(ctx, c.ID); err != nil {
		return fmt.Errorf("delete claim %d: %w", c.ID, err)
	}
	s.reg.Remove(c)
	s.render.Remove(c.ID, world)
	s.writeAudit(AuditEntry{
		Actor:   actor.String(),
		Action:  action,
		World:   world.String(),
		ClaimID: int64(c.ID),
		Details: map[string]any{"deleted": true, "chunks": chunks, "owner": c.Owner.String()},
	})
	return nil
}

// defect reports a registry contract violation after a confirmed write.
// Storage and memory now disagree until the next restart.
func (s *Service) defect(op string, err error) error {
	if s.logger != nil {
		s.logger.Printf("territory: %s: registry out of sync with store: %v", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) record(actor uuid.UUID, action string, p grid.ChunkPos, id claims.ID, details map[string]any) {
	s.writeAudit(AuditEntry{
		Actor:   actor.String(),
		Action:  action,
		World:   p.World.String(),
		X:       p.X(),
		Z:       p.Z(),
		ClaimID: int64(id),
		Details: details,
	})
}

func (s *Service) writeAudit(e AuditEntry) {
	if s.audit == nil {
		return
	}
	e.Time = s.now().UTC()
	if err := s.audit.WriteAudit(e); err != nil && s.logger != nil {
		s.logger.Printf("territory: audit %s: %v", e.Action, err)
	}
}
