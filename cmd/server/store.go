package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/persistence/claimdb"
	"bonfire.gg/internal/persistence/memstore"
	"bonfire.gg/internal/players"
	"bonfire.gg/internal/territory"
)

type runtimeStore interface {
	territory.Store
	players.Store
	LoadClaims(ctx context.Context) ([]*claims.Claim, error)
	LoadPlayers(ctx context.Context) ([]players.Player, error)
	Close() error
}

var (
	_ runtimeStore = (*claimdb.DB)(nil)
	_ runtimeStore = (*memstore.Store)(nil)
)

// openRuntimeStore picks the claim store. -disable_db or
// BONFIRE_STORE_BACKEND=memory keep everything in memory.
func openRuntimeStore(dataDir string, disableDB bool) (runtimeStore, string, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("BONFIRE_STORE_BACKEND")))
	if disableDB {
		backend = "memory"
	}
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "memory", "none", "off":
		return memstore.New(), "memory", nil
	case "sqlite":
		db, err := claimdb.Open(filepath.Join(dataDir, "bonfire.sqlite"))
		if err != nil {
			return nil, "", err
		}
		return db, "sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported BONFIRE_STORE_BACKEND: %s", backend)
	}
}

// loadState reads every persisted claim and player. A claim that does not
// fit the registry (overlapping cells) aborts startup.
func loadState(ctx context.Context, st runtimeStore) (*claims.Registry, []players.Player, error) {
	all, err := st.LoadClaims(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load claims: %w", err)
	}
	reg, err := claims.Load(all)
	if err != nil {
		return nil, nil, fmt.Errorf("index claims: %w", err)
	}
	known, err := st.LoadPlayers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load players: %w", err)
	}
	return reg, known, nil
}
