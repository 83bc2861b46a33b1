package claims

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"bonfire.gg/internal/grid"
)

var (
	ErrCellTaken     = errors.New("claims: cell already claimed")
	ErrUnassignedID  = errors.New("claims: claim has no id")
	ErrDuplicateID   = errors.New("claims: duplicate claim id")
	ErrEmptyClaim    = errors.New("claims: claim has no cells")
	ErrNotRegistered = errors.New("claims: claim is not registered")
	ErrNotMember     = errors.New("claims: cell is not part of the claim")
)

// Registry is the in-memory spatial index over all live claims. It is the
// single owner of Claim values and is not safe for concurrent use; callers
// serialize access (see engine.Engine).
type Registry struct {
	byCell map[grid.ChunkPos]*Claim
	byID   map[ID]*Claim

	ownedChunks map[uuid.UUID]int
	ownedClaims map[uuid.UUID]int
}

func NewRegistry() *Registry {
	return &Registry{
		byCell:      map[grid.ChunkPos]*Claim{},
		byID:        map[ID]*Claim{},
		ownedChunks: map[uuid.UUID]int{},
		ownedClaims: map[uuid.UUID]int{},
	}
}

// Load builds a registry from claims read at startup.
func Load(all []*Claim) (*Registry, error) {
	r := NewRegistry()
	for _, c := range all {
		if err := r.Add(c); err != nil {
			return nil, fmt.Errorf("claim %d: %w", c.ID, err)
		}
	}
	return r, nil
}

func (r *Registry) At(p grid.ChunkPos) *Claim { return r.byCell[p] }

func (r *Registry) Get(id ID) *Claim { return r.byID[id] }

func (r *Registry) Len() int { return len(r.byID) }

func (r *Registry) OwnedChunkCount(owner uuid.UUID) int { return r.ownedChunks[owner] }

func (r *Registry) OwnedClaimCount(owner uuid.UUID) int { return r.ownedClaims[owner] }

// All returns every claim ordered by id.
func (r *Registry) All() []*Claim {
	out := make([]*Claim, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OwnedBy returns the claims of owner ordered by id.
func (r *Registry) OwnedBy(owner uuid.UUID) []*Claim {
	var out []*Claim
	for _, c := range r.byID {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AdjacentOwned returns the distinct claims of owner that hold a cell
// edge-adjacent to p, ordered by id.
func (r *Registry) AdjacentOwned(owner uuid.UUID, p grid.ChunkPos) []*Claim {
	var out []*Claim
	for _, n := range p.Neighbors() {
		c := r.byCell[n]
		if c == nil || c.Owner != owner {
			continue
		}
		dup := false
		for _, o := range out {
			if o == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add registers a new claim and indexes all of its cells. Nothing is indexed
// if any cell is already taken.
func (r *Registry) Add(c *Claim) error {
	if !c.ID.Assigned() {
		return ErrUnassignedID
	}
	if _, ok := r.byID[c.ID]; ok {
		return ErrDuplicateID
	}
	if c.Len() == 0 {
		return ErrEmptyClaim
	}
	for p := range c.chunks {
		if r.byCell[p] != nil {
			return fmt.Errorf("%w: %v", ErrCellTaken, p)
		}
	}
	for p := range c.chunks {
		r.byCell[p] = c
	}
	r.byID[c.ID] = c
	r.ownedChunks[c.Owner] += c.Len()
	r.ownedClaims[c.Owner]++
	return nil
}

// Remove deindexes every cell of c and drops it.
func (r *Registry) Remove(c *Claim) {
	if r.byID[c.ID] != c {
		return
	}
	for p := range c.chunks {
		if r.byCell[p] == c {
			delete(r.byCell, p)
		}
	}
	delete(r.byID, c.ID)
	r.dec(r.ownedChunks, c.Owner, c.Len())
	r.dec(r.ownedClaims, c.Owner, 1)
}

// AddChunk grows c by one cell.
func (r *Registry) AddChunk(c *Claim, p grid.ChunkPos) error {
	if r.byID[c.ID] != c {
		return ErrNotRegistered
	}
	if r.byCell[p] != nil {
		return fmt.Errorf("%w: %v", ErrCellTaken, p)
	}
	c.chunks[p] = struct{}{}
	r.byCell[p] = c
	r.ownedChunks[c.Owner]++
	return nil
}

// RemoveChunk shrinks c by one cell. It refuses to empty a claim; the last
// cell goes away with Remove.
func (r *Registry) RemoveChunk(c *Claim, p grid.ChunkPos) error {
	if r.byID[c.ID] != c {
		return ErrNotRegistered
	}
	if !c.Contains(p) {
		return ErrNotMember
	}
	if c.Len() == 1 {
		return ErrEmptyClaim
	}
	delete(c.chunks, p)
	delete(r.byCell, p)
	r.dec(r.ownedChunks, c.Owner, 1)
	return nil
}

// Absorb moves every cell and missing trust grant of donor into main and
// drops donor.
func (r *Registry) Absorb(main, donor *Claim) error {
	if r.byID[main.ID] != main || r.byID[donor.ID] != donor {
		return ErrNotRegistered
	}
	if main == donor {
		return nil
	}
	n := donor.Len()
	for p := range donor.chunks {
		main.chunks[p] = struct{}{}
		r.byCell[p] = main
	}
	for _, g := range main.MissingGrants(donor) {
		main.trust[g.Player] = g.Kind
	}
	donor.chunks = map[grid.ChunkPos]struct{}{}
	delete(r.byID, donor.ID)

	r.dec(r.ownedChunks, donor.Owner, n)
	r.dec(r.ownedClaims, donor.Owner, 1)
	r.ownedChunks[main.Owner] += n
	return nil
}

// SetOwner transfers c and moves its aggregates to the new owner.
func (r *Registry) SetOwner(c *Claim, owner uuid.UUID) error {
	if r.byID[c.ID] != c {
		return ErrNotRegistered
	}
	if c.Owner == owner {
		return nil
	}
	r.dec(r.ownedChunks, c.Owner, c.Len())
	r.dec(r.ownedClaims, c.Owner, 1)
	c.Owner = owner
	r.ownedChunks[owner] += c.Len()
	r.ownedClaims[owner]++
	return nil
}

func (r *Registry) dec(m map[uuid.UUID]int, owner uuid.UUID, n int) {
	v := m[owner] - n
	if v <= 0 {
		delete(m, owner)
		return
	}
	m[owner] = v
}
