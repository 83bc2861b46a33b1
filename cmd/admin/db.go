package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"bonfire.gg/internal/boundary"
	"bonfire.gg/internal/claims"
	"bonfire.gg/internal/persistence/claimdb"
)

func openDB(fs *flag.FlagSet, args []string) *claimdb.DB {
	dataDir := fs.String("data", "./data", "runtime data directory")
	path := fs.String("db", "", "sqlite db path (default <data>/bonfire.sqlite)")
	_ = fs.Parse(args)
	p := dbPath(*dataDir, *path)
	if _, err := os.Stat(p); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	db, err := claimdb.Open(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return db
}

type claimRow struct {
	ID     int64        `json:"id"`
	Owner  uuid.UUID    `json:"owner"`
	World  uuid.UUID    `json:"world"`
	Chunks int          `json:"chunks"`
	Rules  claims.Rules `json:"rules"`
	Grants int          `json:"trusted"`
}

func claimsCmd(args []string) {
	fs := flag.NewFlagSet("claims", flag.ExitOnError)
	owner := fs.String("owner", "", "owner uuid filter")
	db := openDB(fs, args)
	defer db.Close()

	all, err := db.LoadClaims(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	for _, c := range all {
		if *owner != "" && c.Owner.String() != *owner {
			continue
		}
		printJSON(claimRow{
			ID:     int64(c.ID),
			Owner:  c.Owner,
			World:  c.World(),
			Chunks: c.Len(),
			Rules:  c.Rules,
			Grants: len(c.Grants()),
		})
	}
}

type polygonOut struct {
	ID    int64          `json:"id"`
	World uuid.UUID      `json:"world"`
	Outer [][2]float64   `json:"outer"`
	Holes [][][2]float64 `json:"holes,omitempty"`
}

func polygonCmd(args []string) {
	fs := flag.NewFlagSet("polygon", flag.ExitOnError)
	id := fs.Int64("id", 0, "claim id")
	db := openDB(fs, args)
	defer db.Close()
	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}

	all, err := db.LoadClaims(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	for _, c := range all {
		if int64(c.ID) != *id {
			continue
		}
		poly, ok := boundary.Trace(c.Chunks())
		if !ok {
			fmt.Fprintln(os.Stderr, "claim has no boundary")
			os.Exit(1)
		}
		out := polygonOut{ID: *id, World: c.World(), Outer: poly.Outer.Blocks()}
		for _, h := range poly.Holes {
			out.Holes = append(out.Holes, h.Blocks())
		}
		printJSON(out)
		return
	}
	fmt.Fprintf(os.Stderr, "claim %d not found\n", *id)
	os.Exit(1)
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	top := fs.Int("top", 20, "owners to list")
	db := openDB(fs, args)
	defer db.Close()

	ctx := context.Background()
	total, err := db.Stats(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stats:", err)
		os.Exit(1)
	}
	owners, err := db.StatsByOwner(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stats:", err)
		os.Exit(1)
	}
	if *top > 0 && len(owners) > *top {
		owners = owners[:*top]
	}
	printJSON(struct {
		Totals claimdb.Stats        `json:"totals"`
		Owners []claimdb.OwnerStats `json:"owners"`
	}{total, owners})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
