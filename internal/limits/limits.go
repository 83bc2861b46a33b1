// Package limits maps a player to the number of cells and claims they may own.
package limits

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Limits struct {
	MaxChunks int
	MaxClaims int
}

// Tier raises the limits once a player has accumulated PlaytimeHours of play.
type Tier struct {
	PlaytimeHours float64
	MaxChunks     int
	MaxClaims     int
}

type Config struct {
	BaseChunks int
	BaseClaims int
	Tiers      []Tier
}

// PlaytimeSource reports accumulated playtime. players.Directory implements it.
type PlaytimeSource interface {
	Playtime(id uuid.UUID) time.Duration
}

// Policy is a pure lookup over the current Config. It is not safe for
// concurrent use; the engine goroutine owns it.
type Policy struct {
	base     Limits
	tiers    []Tier
	playtime PlaytimeSource
}

func NewPolicy(cfg Config, playtime PlaytimeSource) *Policy {
	p := &Policy{playtime: playtime}
	p.Update(cfg)
	return p
}

// Update swaps the configuration, e.g. after a reload.
func (p *Policy) Update(cfg Config) {
	p.base = Limits{MaxChunks: cfg.BaseChunks, MaxClaims: cfg.BaseClaims}
	tiers := append([]Tier(nil), cfg.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].PlaytimeHours < tiers[j].PlaytimeHours })
	p.tiers = tiers
}

// Limits returns the base limits raised by the highest tier the player has
// reached. A tier never lowers a limit below the base.
func (p *Policy) Limits(actor uuid.UUID) Limits {
	out := p.base
	if p.playtime == nil || len(p.tiers) == 0 {
		return out
	}
	hours := p.playtime.Playtime(actor).Hours()
	for _, t := range p.tiers {
		if hours < t.PlaytimeHours {
			break
		}
		out = Limits{
			MaxChunks: max(p.base.MaxChunks, t.MaxChunks),
			MaxClaims: max(p.base.MaxClaims, t.MaxClaims),
		}
	}
	return out
}
