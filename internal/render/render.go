// Package render turns claims into map markers and fans them out to sinks.
package render

import (
	"fmt"

	"github.com/google/uuid"

	"bonfire.gg/internal/boundary"
	"bonfire.gg/internal/claims"
)

type Color struct {
	R uint8   `json:"r"`
	G uint8   `json:"g"`
	B uint8   `json:"b"`
	A float64 `json:"a"`
}

// Style controls how every marker is drawn.
type Style struct {
	MarkerSetID    string
	MarkerSetLabel string
	LabelFormat    string
	LineColor      Color
	FillColor      Color
	LineWidth      int
	MinY           int
	MaxY           int
}

func DefaultStyle() Style {
	return Style{
		MarkerSetID:    "bonfire_claims",
		MarkerSetLabel: "Bonfire Claims",
		LabelFormat:    "Claimed by %s",
		LineColor:      Color{R: 255, G: 221, B: 161, A: 0.4},
		FillColor:      Color{R: 255, G: 231, B: 161, A: 0.1},
		LineWidth:      2,
		MinY:           64,
		MaxY:           320,
	}
}

// Marker is an extruded polygon for one claim, in block coordinates.
type Marker struct {
	ID        string         `json:"id"`
	Set       string         `json:"set"`
	ClaimID   int64          `json:"claim_id"`
	World     uuid.UUID      `json:"world"`
	Owner     uuid.UUID      `json:"owner"`
	Label     string         `json:"label"`
	Outer     [][2]float64   `json:"outer"`
	Holes     [][][2]float64 `json:"holes,omitempty"`
	LineColor Color          `json:"line_color"`
	FillColor Color          `json:"fill_color"`
	LineWidth int            `json:"line_width"`
	MinY      int            `json:"min_y"`
	MaxY      int            `json:"max_y"`
}

// Sink receives marker changes. Implementations must not block.
type Sink interface {
	Upsert(m Marker)
	Remove(set string, world uuid.UUID, id string)
}

type Names interface {
	Name(id uuid.UUID) string
}

type ClaimSource interface {
	All() []*claims.Claim
}

func MarkerID(id claims.ID) string { return fmt.Sprintf("claim_%d", id) }

// Publisher is not safe for concurrent use; the engine goroutine owns it.
type Publisher struct {
	style Style
	names Names
	sinks []Sink
}

func NewPublisher(style Style, names Names, sinks ...Sink) *Publisher {
	return &Publisher{style: style, names: names, sinks: sinks}
}

func (p *Publisher) AddSink(s Sink) { p.sinks = append(p.sinks, s) }

func (p *Publisher) SetStyle(s Style) { p.style = s }

func (p *Publisher) Style() Style { return p.style }

// Build returns the marker for c, or false when c has no drawable boundary.
func (p *Publisher) Build(c *claims.Claim) (Marker, bool) {
	if c == nil || c.Len() == 0 {
		return Marker{}, false
	}
	poly, ok := boundary.Trace(c.Chunks())
	if !ok {
		return Marker{}, false
	}
	owner := "Unknown"
	if p.names != nil {
		owner = p.names.Name(c.Owner)
	}
	m := Marker{
		ID:        MarkerID(c.ID),
		Set:       p.style.MarkerSetID,
		ClaimID:   int64(c.ID),
		World:     c.World(),
		Owner:     c.Owner,
		Label:     fmt.Sprintf(p.style.LabelFormat, owner),
		Outer:     poly.Outer.Blocks(),
		LineColor: p.style.LineColor,
		FillColor: p.style.FillColor,
		LineWidth: p.style.LineWidth,
		MinY:      p.style.MinY,
		MaxY:      p.style.MaxY,
	}
	for _, h := range poly.Holes {
		m.Holes = append(m.Holes, h.Blocks())
	}
	return m, true
}

// Update redraws c. A claim without cells is removed instead.
func (p *Publisher) Update(c *claims.Claim) {
	if c == nil {
		return
	}
	m, ok := p.Build(c)
	if !ok {
		p.Remove(c.ID, c.World())
		return
	}
	for _, s := range p.sinks {
		s.Upsert(m)
	}
}

func (p *Publisher) Remove(id claims.ID, world uuid.UUID) {
	for _, s := range p.sinks {
		s.Remove(p.style.MarkerSetID, world, MarkerID(id))
	}
}

// Refresher is implemented by sinks that can drop every marker at once
// before a full redraw.
type Refresher interface {
	Reset()
}

// RefreshAll clears refreshable sinks and redraws every claim.
func (p *Publisher) RefreshAll(src ClaimSource) int {
	for _, s := range p.sinks {
		if r, ok := s.(Refresher); ok {
			r.Reset()
		}
	}
	n := 0
	for _, c := range src.All() {
		m, ok := p.Build(c)
		if !ok {
			continue
		}
		for _, s := range p.sinks {
			s.Upsert(m)
		}
		n++
	}
	return n
}
