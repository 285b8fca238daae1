package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/wardgate/wardgate/internal/audit"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(id, ts, actor, action, resource, code string) audit.Record {
	return audit.Record{
		EventID:       id,
		Timestamp:     ts,
		Actor:         actor,
		Action:        action,
		Resource:      resource,
		ViolationCode: code,
	}
}

// writeLogFixture writes records as a raw audit log so tests control
// timestamps exactly.
func writeLogFixture(t *testing.T, recs []audit.Record) string {
	t.Helper()
	var buf bytes.Buffer
	for _, r := range recs {
		line, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	path := filepath.Join(t.TempDir(), audit.LogFile)
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func fixtureRecords() []audit.Record {
	return []audit.Record{
		rec("e1", "2025-06-01T10:00:00.000Z", "agent", audit.ActionAllow, "notes/monday.md", ""),
		rec("e2", "2025-06-01T10:05:00.000Z", "agent", audit.ActionBlock, "memory.json", "UNAUTHORIZED_MEMORY_WRITE"),
		rec("e3", "2025-06-01T10:10:00.000Z", "daemon", audit.ActionAllow, "reports/q2.md", ""),
		rec("e4", "2025-06-01T10:15:00.000Z", "agent", audit.ActionBlock, "notes/claims.md", "FIRST_PERSON_AUTHORITY"),
	}
}

func ids(recs []audit.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.EventID
	}
	return out
}

func assertIDs(t *testing.T, got []audit.Record, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("ids = %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("ids = %v, want %v", gotIDs, want)
		}
	}
}

func TestSyncIndexesAllRecords(t *testing.T) {
	s := openTestStore(t)
	logPath := writeLogFixture(t, fixtureRecords())

	n, err := s.Sync(context.Background(), logPath)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n != 4 {
		t.Fatalf("Sync = %d, want 4", n)
	}
	count, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Fatalf("Count = %d, want 4", count)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	logPath := writeLogFixture(t, fixtureRecords())

	ctx := context.Background()
	if _, err := s.Sync(ctx, logPath); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if _, err := s.Sync(ctx, logPath); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	count, _ := s.Count(ctx)
	if count != 4 {
		t.Fatalf("Count after re-sync = %d, want 4", count)
	}
}

func TestSyncMissingLogIsEmpty(t *testing.T) {
	s := openTestStore(t)
	n, err := s.Sync(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n != 0 {
		t.Fatalf("Sync = %d, want 0", n)
	}
}

func TestQueryFilters(t *testing.T) {
	s := openTestStore(t)
	logPath := writeLogFixture(t, fixtureRecords())
	ctx := context.Background()
	if _, err := s.Sync(ctx, logPath); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	tests := []struct {
		name   string
		filter audit.Filter
		want   []string
	}{
		{"all", audit.Filter{}, []string{"e1", "e2", "e3", "e4"}},
		{"blocks", audit.Filter{Action: audit.ActionBlock}, []string{"e2", "e4"}},
		{"by code", audit.Filter{Code: "UNAUTHORIZED_MEMORY_WRITE"}, []string{"e2"}},
		{"by actor", audit.Filter{Actor: "daemon"}, []string{"e3"}},
		{"resource substring", audit.Filter{Resource: "notes/"}, []string{"e1", "e4"}},
		{"since", audit.Filter{Since: "2025-06-01T10:06:00.000Z"}, []string{"e3", "e4"}},
		{"limit keeps newest", audit.Filter{Limit: 2}, []string{"e3", "e4"}},
		{"allow in notes", audit.Filter{Action: audit.ActionAllow, Resource: "notes/"}, []string{"e1"}},
		{"no match", audit.Filter{Actor: "nobody"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			assertIDs(t, got, tt.want...)
		})
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Query(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Query on empty index = %v", got)
	}
}

func TestSyncFromLiveLedger(t *testing.T) {
	dir := t.TempDir()
	keys, err := audit.LoadOrCreateKeys(filepath.Join(dir, "keys"))
	if err != nil {
		t.Fatalf("LoadOrCreateKeys: %v", err)
	}
	ledger, err := audit.Open(dir, keys, audit.Provenance{
		PolicyHash:   "test-policy",
		RulesVersion: "test",
		Version:      "0.0.0",
	})
	if err != nil {
		t.Fatalf("Open ledger: %v", err)
	}
	defer ledger.Close()

	for i := 0; i < 6; i++ {
		action := audit.ActionAllow
		code := ""
		if i%2 == 1 {
			action = audit.ActionBlock
			code = "HALLUCINATED_FACT"
		}
		_, err := ledger.Append(audit.Decision{
			Actor:    "agent",
			Action:   action,
			Resource: fmt.Sprintf("notes/file%d.md", i),
			Code:     code,
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	s := openTestStore(t)
	ctx := context.Background()
	n, err := s.Sync(ctx, ledger.Path())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n != 6 {
		t.Fatalf("Sync = %d, want 6", n)
	}

	blocks, err := s.Query(ctx, audit.Filter{Action: audit.ActionBlock})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("blocked records = %d, want 3", len(blocks))
	}
	for _, r := range blocks {
		if r.ChainHash == "" {
			t.Errorf("record %s indexed without chain hash", r.EventID)
		}
	}
}
