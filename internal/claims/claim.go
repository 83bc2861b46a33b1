package claims

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"bonfire.gg/internal/grid"
)

// ID is assigned by the store when a claim is first written. Zero means
// unassigned; such a claim is never accepted by the Registry.
type ID int64

func (id ID) Assigned() bool { return id > 0 }

// EntityRule governs entity interaction, targeting and collision.
type EntityRule uint8

const (
	EntityDeny EntityRule = iota
	EntityAllow
	EntityOnlyMounts
)

func ParseEntityRule(s string) (EntityRule, bool) {
	switch s {
	case "false":
		return EntityDeny, true
	case "true":
		return EntityAllow, true
	case "onlyMounts":
		return EntityOnlyMounts, true
	}
	return EntityDeny, false
}

func (r EntityRule) String() string {
	switch r {
	case EntityAllow:
		return "true"
	case EntityOnlyMounts:
		return "onlyMounts"
	default:
		return "false"
	}
}

func (r EntityRule) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *EntityRule) UnmarshalText(b []byte) error {
	v, ok := ParseEntityRule(string(b))
	if !ok {
		return fmt.Errorf("invalid entity rule %q (want true, false or onlyMounts)", string(b))
	}
	*r = v
	return nil
}

// TrustKind says when a trusted player is exempt from a claim's rules.
type TrustKind uint8

const (
	TrustAlways TrustKind = iota + 1
	TrustWhileOnline
)

func ParseTrustKind(s string) (TrustKind, bool) {
	switch s {
	case "always", "ALWAYS":
		return TrustAlways, true
	case "whileOnline", "WHILE_ONLINE":
		return TrustWhileOnline, true
	}
	return 0, false
}

// String returns the storage form of the kind.
func (k TrustKind) String() string {
	switch k {
	case TrustAlways:
		return "ALWAYS"
	case TrustWhileOnline:
		return "WHILE_ONLINE"
	}
	return "UNKNOWN"
}

type Rules struct {
	AllowBlockBreak     bool       `json:"allow_block_break"`
	AllowBlockInteract  bool       `json:"allow_block_interact"`
	AllowEntityInteract EntityRule `json:"allow_entity_interact"`
}

// Grant is one trust entry.
type Grant struct {
	Player uuid.UUID
	Kind   TrustKind
}

// Claim is an owned, edge-connected set of cells sharing one rule set and
// trust list. The cell set is only mutated through the Registry so that the
// index and the claim never disagree.
type Claim struct {
	ID    ID
	Owner uuid.UUID
	Rules Rules

	chunks map[grid.ChunkPos]struct{}
	trust  map[uuid.UUID]TrustKind
}

func New(id ID, owner uuid.UUID, rules Rules, chunks ...grid.ChunkPos) *Claim {
	c := &Claim{
		ID:     id,
		Owner:  owner,
		Rules:  rules,
		chunks: make(map[grid.ChunkPos]struct{}, len(chunks)),
		trust:  map[uuid.UUID]TrustKind{},
	}
	for _, p := range chunks {
		c.chunks[p] = struct{}{}
	}
	return c
}

func (c *Claim) Len() int { return len(c.chunks) }

func (c *Claim) Contains(p grid.ChunkPos) bool {
	_, ok := c.chunks[p]
	return ok
}

// Chunks returns the cells in a stable order.
func (c *Claim) Chunks() []grid.ChunkPos {
	out := make([]grid.ChunkPos, 0, len(c.chunks))
	for p := range c.chunks {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// World returns the world the claim lives in, or uuid.Nil for an empty claim.
func (c *Claim) World() uuid.UUID {
	for p := range c.chunks {
		return p.World
	}
	return uuid.Nil
}

func (c *Claim) TrustOf(player uuid.UUID) (TrustKind, bool) {
	k, ok := c.trust[player]
	return k, ok
}

func (c *Claim) IsTrusted(player uuid.UUID) bool {
	_, ok := c.trust[player]
	return ok
}

func (c *Claim) HasTrusted() bool { return len(c.trust) > 0 }

// Trusted returns the players holding the given kind of trust, sorted.
func (c *Claim) Trusted(kind TrustKind) []uuid.UUID {
	var out []uuid.UUID
	for id, k := range c.trust {
		if k == kind {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Grants returns every trust entry, sorted by player.
func (c *Claim) Grants() []Grant {
	out := make([]Grant, 0, len(c.trust))
	for id, k := range c.trust {
		out = append(out, Grant{Player: id, Kind: k})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player.String() < out[j].Player.String() })
	return out
}

// AddTrust records a grant. It returns false if the player is already trusted
// in either form.
func (c *Claim) AddTrust(player uuid.UUID, kind TrustKind) bool {
	if _, ok := c.trust[player]; ok {
		return false
	}
	c.trust[player] = kind
	return true
}

func (c *Claim) RemoveTrust(player uuid.UUID) bool {
	if _, ok := c.trust[player]; !ok {
		return false
	}
	delete(c.trust, player)
	return true
}

// MissingGrants lists the grants of donor that c does not already cover.
// Players already trusted by c keep their existing kind.
func (c *Claim) MissingGrants(donor *Claim) []Grant {
	var out []Grant
	for _, g := range donor.Grants() {
		if c.IsTrusted(g.Player) {
			continue
		}
		out = append(out, g)
	}
	return out
}
