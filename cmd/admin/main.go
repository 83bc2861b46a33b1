package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "bonfire.gg/internal/persistence/log"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "claims":
		claimsCmd(args)
	case "polygon":
		polygonCmd(args)
	case "stats":
		statsCmd(args)
	case "audit":
		auditCmd(args)
	case "state":
		stateCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <claims|polygon|stats|audit|state> [flags]")
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	action := fs.String("action", "", "action filter (e.g. MERGE)")
	actor := fs.String("actor", "", "actor uuid filter")
	claimID := fs.Int64("claim", 0, "claim id filter")
	limit := fs.Int("limit", 0, "print only the last N entries (0 = all)")
	_ = fs.Parse(args)

	entries, err := persistlog.ReadAudit(*dataDir, persistlog.AuditFilter{
		Action:  *action,
		Actor:   *actor,
		ClaimID: *claimID,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if *limit > 0 && len(entries) > *limit {
		entries = entries[len(entries)-*limit:]
	}
	for _, e := range entries {
		printJSON(e)
	}
}

func dbPath(dataDir, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(dataDir, "bonfire.sqlite")
}
