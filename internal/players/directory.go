// Package players tracks who has played on the server, who is online and how
// long each player has played.
package players

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Player is the durable record of one player.
type Player struct {
	ID        uuid.UUID
	Name      string
	FirstSeen time.Time
	LastSeen  time.Time
	Playtime  time.Duration
}

type Store interface {
	UpsertPlayer(ctx context.Context, p Player) error
}

// Directory is not safe for concurrent use; the engine goroutine owns it.
type Directory struct {
	store Store
	now   func() time.Time

	byID   map[uuid.UUID]*Player
	byName map[string]uuid.UUID
	online map[uuid.UUID]time.Time // session start
}

// NewDirectory builds a directory over previously persisted players. A nil
// store keeps everything in memory.
func NewDirectory(store Store, now func() time.Time, known []Player) *Directory {
	if now == nil {
		now = time.Now
	}
	d := &Directory{
		store:  store,
		now:    now,
		byID:   map[uuid.UUID]*Player{},
		byName: map[string]uuid.UUID{},
		online: map[uuid.UUID]time.Time{},
	}
	for i := range known {
		p := known[i]
		d.byID[p.ID] = &p
		if p.Name != "" {
			d.byName[strings.ToLower(p.Name)] = p.ID
		}
	}
	return d
}

// Join marks a player online and records their current name.
func (d *Directory) Join(ctx context.Context, id uuid.UUID, name string) error {
	now := d.now()
	rec := Player{ID: id, Name: name, FirstSeen: now, LastSeen: now}
	if old := d.byID[id]; old != nil {
		rec = *old
		rec.Name = name
		rec.LastSeen = now
	}
	if d.store != nil {
		if err := d.store.UpsertPlayer(ctx, rec); err != nil {
			return fmt.Errorf("save player %s: %w", id, err)
		}
	}
	if old := d.byID[id]; old != nil && old.Name != "" && !strings.EqualFold(old.Name, name) {
		if d.byName[strings.ToLower(old.Name)] == id {
			delete(d.byName, strings.ToLower(old.Name))
		}
	}
	d.byID[id] = &rec
	d.byName[strings.ToLower(name)] = id
	d.online[id] = now
	return nil
}

// Quit marks a player offline and folds the session into their playtime.
// Quitting a player that is not online is a no-op.
func (d *Directory) Quit(ctx context.Context, id uuid.UUID) error {
	start, ok := d.online[id]
	if !ok {
		return nil
	}
	now := d.now()
	rec := Player{ID: id, FirstSeen: start, LastSeen: now}
	if old := d.byID[id]; old != nil {
		rec = *old
		rec.LastSeen = now
	}
	if now.After(start) {
		rec.Playtime += now.Sub(start)
	}
	if d.store != nil {
		if err := d.store.UpsertPlayer(ctx, rec); err != nil {
			return fmt.Errorf("save player %s: %w", id, err)
		}
	}
	d.byID[id] = &rec
	delete(d.online, id)
	return nil
}

// Resolve finds a player by name, ignoring case. Only players that have
// played before or are online resolve.
func (d *Directory) Resolve(name string) (uuid.UUID, bool) {
	id, ok := d.byName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

func (d *Directory) IsOnline(id uuid.UUID) bool {
	_, ok := d.online[id]
	return ok
}

func (d *Directory) Known(id uuid.UUID) bool {
	_, ok := d.byID[id]
	return ok
}

// Playtime includes the current session for online players.
func (d *Directory) Playtime(id uuid.UUID) time.Duration {
	var total time.Duration
	if p := d.byID[id]; p != nil {
		total = p.Playtime
	}
	if start, ok := d.online[id]; ok {
		if now := d.now(); now.After(start) {
			total += now.Sub(start)
		}
	}
	return total
}

// Name returns the last known name, or "Unknown".
func (d *Directory) Name(id uuid.UUID) string {
	if p := d.byID[id]; p != nil && p.Name != "" {
		return p.Name
	}
	return "Unknown"
}

// Online returns the ids of online players, sorted.
func (d *Directory) Online() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(d.online))
	for id := range d.online {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
