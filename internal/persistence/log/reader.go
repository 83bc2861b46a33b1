package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"bonfire.gg/internal/territory"
)

// AuditFilter selects entries; zero fields match everything.
type AuditFilter struct {
	Action  string
	Actor   string
	ClaimID int64
}

func (f AuditFilter) match(e territory.AuditEntry) bool {
	if f.Action != "" && !strings.EqualFold(f.Action, e.Action) {
		return false
	}
	if f.Actor != "" && f.Actor != e.Actor {
		return false
	}
	if f.ClaimID != 0 && f.ClaimID != e.ClaimID {
		return false
	}
	return true
}

// ReadAudit reads every audit file under dataDir/audit in file name order,
// which is chronological.
func ReadAudit(dataDir string, f AuditFilter) ([]territory.AuditEntry, error) {
	dir := filepath.Join(dataDir, "audit")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []territory.AuditEntry
	for _, name := range names {
		if err := readFile(filepath.Join(dir, name), func(b []byte) error {
			var e territory.AuditEntry
			if err := json.Unmarshal(b, &e); err != nil {
				return err
			}
			if f.match(e) {
				out = append(out, e)
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return out, nil
}

func readFile(path string, line func([]byte) error) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	dec, err := zstd.NewReader(fh)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := line(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
