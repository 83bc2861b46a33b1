package territory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/limits"
)

// Store is the durable side of every lifecycle operation. Each call must be
// confirmed before the in-memory registry is touched.
type Store interface {
	// CreateClaim inserts a claim row with the given rules and returns its id.
	CreateClaim(ctx context.Context, owner uuid.UUID, rules claims.Rules) (claims.ID, error)
	AddChunk(ctx context.Context, id claims.ID, p grid.ChunkPos) error
	RemoveChunk(ctx context.Context, id claims.ID, p grid.ChunkPos) error
	UpdateRules(ctx context.Context, id claims.ID, rules claims.Rules) error
	UpdateOwner(ctx context.Context, id claims.ID, owner uuid.UUID) error
	AddTrust(ctx context.Context, id claims.ID, player uuid.UUID, kind claims.TrustKind) error
	RemoveTrust(ctx context.Context, id claims.ID, player uuid.UUID) error
	// MoveChunks reassigns every cell of from to to.
	MoveChunks(ctx context.Context, from, to claims.ID) error
	// DeleteClaim drops the claim with its cells and trust grants.
	DeleteClaim(ctx context.Context, id claims.ID) error

	// Atomic runs fn against a store whose writes commit together or not
	// at all.
	Atomic(ctx context.Context, fn func(Store) error) error
}

type LimitSource interface {
	Limits(actor uuid.UUID) limits.Limits
}

// Resolver finds players that have played before or are online.
type Resolver interface {
	Resolve(name string) (uuid.UUID, bool)
}

// Renderer receives claim shape changes for map rendering.
type Renderer interface {
	Update(c *claims.Claim)
	Remove(id claims.ID, world uuid.UUID)
}

type Auditor interface {
	WriteAudit(e AuditEntry) error
}

// AuditEntry records one successful lifecycle mutation.
type AuditEntry struct {
	Time    time.Time      `json:"time"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "CLAIM", "MERGE"
	World   string         `json:"world,omitempty"`
	X       int32          `json:"x"`
	Z       int32          `json:"z"`
	ClaimID int64          `json:"claim_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type nopRenderer struct{}

func (nopRenderer) Update(*claims.Claim)       {}
func (nopRenderer) Remove(claims.ID, uuid.UUID) {}
