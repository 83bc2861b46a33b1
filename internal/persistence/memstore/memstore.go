// Package memstore is an in-memory claim and player store with the same
// contract as claimdb. The server uses it when the database is disabled.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/players"
	"bonfire.gg/internal/territory"
)

type claimRow struct {
	owner  uuid.UUID
	rules  claims.Rules
	chunks map[grid.ChunkPos]struct{}
	trust  map[uuid.UUID]claims.TrustKind
}

func (r *claimRow) clone() *claimRow {
	c := &claimRow{
		owner:  r.owner,
		rules:  r.rules,
		chunks: make(map[grid.ChunkPos]struct{}, len(r.chunks)),
		trust:  make(map[uuid.UUID]claims.TrustKind, len(r.trust)),
	}
	for p := range r.chunks {
		c.chunks[p] = struct{}{}
	}
	for id, k := range r.trust {
		c.trust[id] = k
	}
	return c
}

type Store struct {
	mu      sync.Mutex
	nextID  claims.ID
	claims  map[claims.ID]*claimRow
	owner   map[grid.ChunkPos]claims.ID
	players map[uuid.UUID]players.Player
}

var _ territory.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		nextID:  1,
		claims:  map[claims.ID]*claimRow{},
		owner:   map[grid.ChunkPos]claims.ID{},
		players: map[uuid.UUID]players.Player{},
	}
}

func (s *Store) CreateClaim(_ context.Context, owner uuid.UUID, rules claims.Rules) (claims.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.claims[id] = &claimRow{
		owner:  owner,
		rules:  rules,
		chunks: map[grid.ChunkPos]struct{}{},
		trust:  map[uuid.UUID]claims.TrustKind{},
	}
	return id, nil
}

func (s *Store) AddChunk(_ context.Context, id claims.ID, p grid.ChunkPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return err
	}
	if other, taken := s.owner[p]; taken {
		return fmt.Errorf("memstore: chunk %v already belongs to claim %d", p, other)
	}
	row.chunks[p] = struct{}{}
	s.owner[p] = id
	return nil
}

func (s *Store) RemoveChunk(_ context.Context, id claims.ID, p grid.ChunkPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return err
	}
	delete(row.chunks, p)
	if s.owner[p] == id {
		delete(s.owner, p)
	}
	return nil
}

func (s *Store) UpdateRules(_ context.Context, id claims.ID, rules claims.Rules) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return err
	}
	row.rules = rules
	return nil
}

func (s *Store) UpdateOwner(_ context.Context, id claims.ID, owner uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return err
	}
	row.owner = owner
	return nil
}

func (s *Store) AddTrust(_ context.Context, id claims.ID, player uuid.UUID, kind claims.TrustKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return err
	}
	row.trust[player] = kind
	return nil
}

func (s *Store) RemoveTrust(_ context.Context, id claims.ID, player uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.rowLocked(id)
	if err != nil {
		return err
	}
	delete(row.trust, player)
	return nil
}

func (s *Store) MoveChunks(_ context.Context, from, to claims.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, err := s.rowLocked(from)
	if err != nil {
		return err
	}
	dst, err := s.rowLocked(to)
	if err != nil {
		return err
	}
	for p := range src.chunks {
		dst.chunks[p] = struct{}{}
		s.owner[p] = to
	}
	src.chunks = map[grid.ChunkPos]struct{}{}
	return nil
}

func (s *Store) DeleteClaim(_ context.Context, id claims.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.claims[id]
	if !ok {
		return nil
	}
	for p := range row.chunks {
		if s.owner[p] == id {
			delete(s.owner, p)
		}
	}
	delete(s.claims, id)
	return nil
}

// Atomic runs fn on a copy of the store and keeps the copy only if fn
// succeeds.
func (s *Store) Atomic(ctx context.Context, fn func(territory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Store{
		nextID:  s.nextID,
		claims:  make(map[claims.ID]*claimRow, len(s.claims)),
		owner:   make(map[grid.ChunkPos]claims.ID, len(s.owner)),
		players: s.players,
	}
	for id, row := range s.claims {
		tx.claims[id] = row.clone()
	}
	for p, id := range s.owner {
		tx.owner[p] = id
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.nextID = tx.nextID
	s.claims = tx.claims
	s.owner = tx.owner
	return nil
}

// LoadClaims returns every claim that still has cells, ordered by id.
func (s *Store) LoadClaims(context.Context) ([]*claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]claims.ID, 0, len(s.claims))
	for id := range s.claims {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*claims.Claim
	for _, id := range ids {
		row := s.claims[id]
		if len(row.chunks) == 0 {
			continue
		}
		cells := make([]grid.ChunkPos, 0, len(row.chunks))
		for p := range row.chunks {
			cells = append(cells, p)
		}
		c := claims.New(id, row.owner, row.rules, cells...)
		for pl, k := range row.trust {
			c.AddTrust(pl, k)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) UpsertPlayer(_ context.Context, p players.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = p
	return nil
}

func (s *Store) LoadPlayers(context.Context) ([]players.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]players.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) rowLocked(id claims.ID) (*claimRow, error) {
	row, ok := s.claims[id]
	if !ok {
		return nil, fmt.Errorf("memstore: claim %d not found", id)
	}
	return row, nil
}
