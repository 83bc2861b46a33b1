// Package claimdb persists claims, their cells, trust grants and known
// players in SQLite.
package claimdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/grid"
	"bonfire.gg/internal/players"
	"bonfire.gg/internal/territory"
)

// execer is the part of *sql.DB and *sql.Tx the store writes through.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	conn *sql.DB
	*store
}

// store runs queries against either the pool or one open transaction.
type store struct {
	db   *sql.DB
	q    execer
	inTx bool
}

var (
	_ territory.Store = (*DB)(nil)
	_ territory.Store = (*store)(nil)
	_ players.Store   = (*DB)(nil)
)

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("claimdb: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("claimdb: create directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("claimdb: open: %w", err)
	}
	// A single connection keeps the pragmas and serializes writers.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("claimdb: ping: %w", err)
	}
	db := &DB{conn: conn, store: &store{db: conn, q: conn}}
	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("claimdb: migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error { return db.conn.Close() }

func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}
	for _, m := range migrations {
		var n int
		if err := db.conn.QueryRow(`SELECT COUNT(*) FROM migrations WHERE id = ?`, m.id).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if err := db.runMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.id, m.name, err)
		}
	}
	return nil
}

func (db *DB) runMigration(m migration) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO migrations (id, name) VALUES (?, ?)`, m.id, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

// Atomic runs fn inside one transaction. Nested calls join the outer one.
func (s *store) Atomic(ctx context.Context, fn func(territory.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("claimdb: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("claimdb: commit: %w", err)
	}
	return nil
}

func (s *store) CreateClaim(ctx context.Context, owner uuid.UUID, rules claims.Rules) (claims.ID, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO claims (owner, allow_block_break, allow_block_interact, allow_entity_interact) VALUES (?, ?, ?, ?)`,
		owner.String(), rules.AllowBlockBreak, rules.AllowBlockInteract, rules.AllowEntityInteract.String())
	if err != nil {
		return 0, fmt.Errorf("claimdb: create claim: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("claimdb: create claim: %w", err)
	}
	return claims.ID(id), nil
}

func (s *store) AddChunk(ctx context.Context, id claims.ID, p grid.ChunkPos) error {
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO claim_chunks (claim_id, world, chunk_key) VALUES (?, ?, ?)`,
		int64(id), p.World.String(), int64(p.Key)); err != nil {
		return fmt.Errorf("claimdb: add chunk %v to claim %d: %w", p, id, err)
	}
	return nil
}

func (s *store) RemoveChunk(ctx context.Context, id claims.ID, p grid.ChunkPos) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM claim_chunks WHERE claim_id = ? AND world = ? AND chunk_key = ?`,
		int64(id), p.World.String(), int64(p.Key)); err != nil {
		return fmt.Errorf("claimdb: remove chunk %v from claim %d: %w", p, id, err)
	}
	return nil
}

func (s *store) UpdateRules(ctx context.Context, id claims.ID, rules claims.Rules) error {
	return s.exec1(ctx, "update rules",
		`UPDATE claims SET allow_block_break = ?, allow_block_interact = ?, allow_entity_interact = ? WHERE id = ?`,
		rules.AllowBlockBreak, rules.AllowBlockInteract, rules.AllowEntityInteract.String(), int64(id))
}

func (s *store) UpdateOwner(ctx context.Context, id claims.ID, owner uuid.UUID) error {
	return s.exec1(ctx, "update owner", `UPDATE claims SET owner = ? WHERE id = ?`, owner.String(), int64(id))
}

func (s *store) AddTrust(ctx context.Context, id claims.ID, player uuid.UUID, kind claims.TrustKind) error {
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO trusted_players (claim_id, player, kind) VALUES (?, ?, ?)
		 ON CONFLICT(claim_id, player) DO UPDATE SET kind = excluded.kind`,
		int64(id), player.String(), kind.String()); err != nil {
		return fmt.Errorf("claimdb: add trust on claim %d: %w", id, err)
	}
	return nil
}

func (s *store) RemoveTrust(ctx context.Context, id claims.ID, player uuid.UUID) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM trusted_players WHERE claim_id = ? AND player = ?`, int64(id), player.String()); err != nil {
		return fmt.Errorf("claimdb: remove trust on claim %d: %w", id, err)
	}
	return nil
}

func (s *store) MoveChunks(ctx context.Context, from, to claims.ID) error {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE claim_chunks SET claim_id = ? WHERE claim_id = ?`, int64(to), int64(from)); err != nil {
		return fmt.Errorf("claimdb: move chunks %d -> %d: %w", from, to, err)
	}
	return nil
}

// DeleteClaim relies on ON DELETE CASCADE for cells and trust grants.
func (s *store) DeleteClaim(ctx context.Context, id claims.ID) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM claims WHERE id = ?`, int64(id)); err != nil {
		return fmt.Errorf("claimdb: delete claim %d: %w", id, err)
	}
	return nil
}

// exec1 runs an update that must touch exactly one claim row.
func (s *store) exec1(ctx context.Context, op, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("claimdb: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claimdb: %s: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("claimdb: %s: %d rows affected", op, n)
	}
	return nil
}

// LoadClaims reads every claim with at least one cell, ordered by id. Rows
// that fail to parse are reported rather than skipped.
func (s *store) LoadClaims(ctx context.Context) ([]*claims.Claim, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, owner, allow_block_break, allow_block_interact, allow_entity_interact FROM claims ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("claimdb: load claims: %w", err)
	}
	type head struct {
		id    claims.ID
		owner uuid.UUID
		rules claims.Rules
	}
	var heads []head
	for rows.Next() {
		var (
			id            int64
			owner, ent    string
			brk, interact bool
		)
		if err := rows.Scan(&id, &owner, &brk, &interact, &ent); err != nil {
			rows.Close()
			return nil, fmt.Errorf("claimdb: scan claim: %w", err)
		}
		o, err := uuid.Parse(owner)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("claimdb: claim %d owner: %w", id, err)
		}
		er, ok := claims.ParseEntityRule(ent)
		if !ok {
			rows.Close()
			return nil, fmt.Errorf("claimdb: claim %d: bad entity rule %q", id, ent)
		}
		heads = append(heads, head{id: claims.ID(id), owner: o, rules: claims.Rules{AllowBlockBreak: brk, AllowBlockInteract: interact, AllowEntityInteract: er}})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("claimdb: load claims: %w", err)
	}
	rows.Close()

	cells, err := s.loadCells(ctx)
	if err != nil {
		return nil, err
	}
	grants, err := s.loadGrants(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*claims.Claim, 0, len(heads))
	for _, h := range heads {
		cs := cells[h.id]
		if len(cs) == 0 {
			continue
		}
		c := claims.New(h.id, h.owner, h.rules, cs...)
		for _, g := range grants[h.id] {
			c.AddTrust(g.Player, g.Kind)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *store) loadCells(ctx context.Context) (map[claims.ID][]grid.ChunkPos, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT claim_id, world, chunk_key FROM claim_chunks`)
	if err != nil {
		return nil, fmt.Errorf("claimdb: load chunks: %w", err)
	}
	defer rows.Close()
	out := map[claims.ID][]grid.ChunkPos{}
	for rows.Next() {
		var (
			id    int64
			world string
			key   int64
		)
		if err := rows.Scan(&id, &world, &key); err != nil {
			return nil, fmt.Errorf("claimdb: scan chunk: %w", err)
		}
		w, err := uuid.Parse(world)
		if err != nil {
			return nil, fmt.Errorf("claimdb: claim %d world: %w", id, err)
		}
		out[claims.ID(id)] = append(out[claims.ID(id)], grid.ChunkPos{World: w, Key: grid.Key(key)})
	}
	return out, rows.Err()
}

func (s *store) loadGrants(ctx context.Context) (map[claims.ID][]claims.Grant, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT claim_id, player, kind FROM trusted_players`)
	if err != nil {
		return nil, fmt.Errorf("claimdb: load trust: %w", err)
	}
	defer rows.Close()
	out := map[claims.ID][]claims.Grant{}
	for rows.Next() {
		var (
			id           int64
			player, kind string
		)
		if err := rows.Scan(&id, &player, &kind); err != nil {
			return nil, fmt.Errorf("claimdb: scan trust: %w", err)
		}
		p, err := uuid.Parse(player)
		if err != nil {
			return nil, fmt.Errorf("claimdb: claim %d trusted player: %w", id, err)
		}
		k, ok := claims.ParseTrustKind(kind)
		if !ok {
			return nil, fmt.Errorf("claimdb: claim %d: bad trust kind %q", id, kind)
		}
		out[claims.ID(id)] = append(out[claims.ID(id)], claims.Grant{Player: p, Kind: k})
	}
	return out, rows.Err()
}

func (s *store) UpsertPlayer(ctx context.Context, p players.Player) error {
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO players (id, name, first_seen, last_seen, playtime_ms) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen, playtime_ms = excluded.playtime_ms`,
		p.ID.String(), p.Name, p.FirstSeen.UTC().Format(time.RFC3339Nano), p.LastSeen.UTC().Format(time.RFC3339Nano), p.Playtime.Milliseconds()); err != nil {
		return fmt.Errorf("claimdb: upsert player %s: %w", p.ID, err)
	}
	return nil
}

func (s *store) LoadPlayers(ctx context.Context) ([]players.Player, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, first_seen, last_seen, playtime_ms FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("claimdb: load players: %w", err)
	}
	defer rows.Close()
	var out []players.Player
	for rows.Next() {
		var (
			id, name, first, last string
			ms                    int64
		)
		if err := rows.Scan(&id, &name, &first, &last, &ms); err != nil {
			return nil, fmt.Errorf("claimdb: scan player: %w", err)
		}
		pid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("claimdb: player id: %w", err)
		}
		fs, _ := time.Parse(time.RFC3339Nano, first)
		ls, _ := time.Parse(time.RFC3339Nano, last)
		out = append(out, players.Player{ID: pid, Name: name, FirstSeen: fs, LastSeen: ls, Playtime: time.Duration(ms) * time.Millisecond})
	}
	return out, rows.Err()
}

// Stats is a row count summary used by the admin tool.
type Stats struct {
	Claims  int
	Chunks  int
	Trusted int
	Players int
}

func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	for _, q := range []struct {
		sql string
		dst *int
	}{
		{`SELECT COUNT(*) FROM claims`, &st.Claims},
		{`SELECT COUNT(*) FROM claim_chunks`, &st.Chunks},
		{`SELECT COUNT(*) FROM trusted_players`, &st.Trusted},
		{`SELECT COUNT(*) FROM players`, &st.Players},
	} {
		if err := db.conn.QueryRowContext(ctx, q.sql).Scan(q.dst); err != nil {
			return st, fmt.Errorf("claimdb: stats: %w", err)
		}
	}
	return st, nil
}

// OwnerStats is the per-owner claim and cell count.
type OwnerStats struct {
	Owner  uuid.UUID
	Name   string
	Claims int
	Chunks int
}

// StatsByOwner lists owners by descending cell count.
func (db *DB) StatsByOwner(ctx context.Context) ([]OwnerStats, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.owner, COALESCE(p.name, ''), COUNT(DISTINCT c.id), COUNT(cc.chunk_key)
		FROM claims c
		LEFT JOIN claim_chunks cc ON cc.claim_id = c.id
		LEFT JOIN players p ON p.id = c.owner
		GROUP BY c.owner
		ORDER BY COUNT(cc.chunk_key) DESC, c.owner`)
	if err != nil {
		return nil, fmt.Errorf("claimdb: owner stats: %w", err)
	}
	defer rows.Close()
	var out []OwnerStats
	for rows.Next() {
		var (
			owner, name string
			st          OwnerStats
		)
		if err := rows.Scan(&owner, &name, &st.Claims, &st.Chunks); err != nil {
			return nil, fmt.Errorf("claimdb: scan owner stats: %w", err)
		}
		id, err := uuid.Parse(owner)
		if err != nil {
			return nil, fmt.Errorf("claimdb: owner id: %w", err)
		}
		st.Owner, st.Name = id, name
		out = append(out, st)
	}
	return out, rows.Err()
}
