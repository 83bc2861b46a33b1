package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bonfire.gg/internal/territory"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(filepath.Join(dir, "audit"), "audit")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(territory.AuditEntry{Action: "CREATE", ClaimID: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(territory.AuditEntry{Action: "CLAIM", ClaimID: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, name := range []string{"audit-2026-03-01-10.jsonl.zst", "audit-2026-03-01-11.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(dir, "audit", name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	all, err := ReadAudit(dir, AuditFilter{})
	if err != nil {
		t.Fatalf("ReadAudit: %v", err)
	}
	if len(all) != 2 || all[0].Action != "CREATE" || all[1].Action != "CLAIM" {
		t.Fatalf("entries=%+v", all)
	}
}

func TestAuditLogger_FilterByAction(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	for _, e := range []territory.AuditEntry{
		{Actor: "a", Action: "CREATE", ClaimID: 1},
		{Actor: "a", Action: "MERGE", ClaimID: 1},
		{Actor: "b", Action: "CREATE", ClaimID: 2},
	} {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := ReadAudit(dir, AuditFilter{Action: "create"})
	if err != nil {
		t.Fatalf("ReadAudit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("CREATE entries=%d want 2", len(got))
	}
	got, _ = ReadAudit(dir, AuditFilter{ClaimID: 2})
	if len(got) != 1 || got[0].Actor != "b" {
		t.Fatalf("claim 2 entries=%+v", got)
	}
}

func TestReadAudit_MissingDir(t *testing.T) {
	if _, err := ReadAudit(t.TempDir(), AuditFilter{}); err == nil {
		t.Fatalf("expected error when no audit dir exists")
	}
}
