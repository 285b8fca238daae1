package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func writeReplayFixture(t *testing.T) (string, []Record) {
	t.Helper()
	l, _, dir := newTestLedger(t)
	defer l.Close()

	decisions := []Decision{
		{Actor: "agent", Action: ActionAllow, Resource: "/workspace/notes.md", HashBefore: HashNotFound, HashAfter: "aa"},
		{Actor: "agent", Action: ActionBlock, Resource: "/workspace/memory.json", Code: "UNAUTHORIZED_MEMORY_WRITE", HashBefore: "bb", HashAfter: "bb"},
		{Actor: "daemon", Action: ActionAllow, Resource: "/workspace/report.md", HashBefore: "cc", HashAfter: "dd"},
		{Actor: "agent", Action: ActionBlock, Resource: "/workspace/claims.md", Code: "FIRST_PERSON_AUTHORITY", HashBefore: "ee", HashAfter: "ee"},
	}
	var records []Record
	for _, d := range decisions {
		rec, err := l.Append(d)
		if err != nil {
			t.Fatal(err)
		}
		records = append(records, rec)
	}
	return filepath.Join(dir, LogFile), records
}

func TestReadAllReturnsRecordsInOrder(t *testing.T) {
	path, want := writeReplayFixture(t)

	got, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d records, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].EventID != want[i].EventID {
			t.Errorf("record %d out of order: %s != %s", i, got[i].EventID, want[i].EventID)
		}
	}
}

func TestReadAllMissingLogIsEmpty(t *testing.T) {
	records, err := ReadAll(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	path, want := writeReplayFixture(t)

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	f.WriteString("garbage line\n")
	f.Close()

	got, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("read %d records, want %d", len(got), len(want))
	}
}

func TestTailReturnsLastN(t *testing.T) {
	path, want := writeReplayFixture(t)

	got, err := Tail(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("tail returned %d records, want 2", len(got))
	}
	if got[0].EventID != want[2].EventID || got[1].EventID != want[3].EventID {
		t.Error("tail did not return the most recent records")
	}
}

func TestFilterSelectsRecords(t *testing.T) {
	path, _ := writeReplayFixture(t)
	records, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"blocked only", Filter{Action: ActionBlock}, 2},
		{"by actor", Filter{Actor: "daemon"}, 1},
		{"by code", Filter{Code: "UNAUTHORIZED_MEMORY_WRITE"}, 1},
		{"by resource substring", Filter{Resource: "memory"}, 1},
		{"limit", Filter{Limit: 3}, 3},
		{"combined", Filter{Actor: "agent", Action: ActionBlock}, 2},
		{"no match", Filter{Code: "NO_SUCH_CODE"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Apply(records); len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFilterSinceBound(t *testing.T) {
	path, want := writeReplayFixture(t)
	records, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}

	since := want[2].Timestamp
	got := Filter{Since: since}.Apply(records)
	if len(got) < 2 {
		t.Fatalf("since filter returned %d records, want at least 2", len(got))
	}
	for _, rec := range got {
		if rec.Timestamp < since {
			t.Errorf("record %s timestamp %s precedes bound %s", rec.EventID, rec.Timestamp, since)
		}
	}
}

func TestSummarizeCounts(t *testing.T) {
	path, _ := writeReplayFixture(t)
	records, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}

	s := Summarize(records)
	if s.Total != 4 {
		t.Errorf("total = %d, want 4", s.Total)
	}
	if s.Allowed != 2 || s.Blocked != 2 {
		t.Errorf("allowed/blocked = %d/%d, want 2/2", s.Allowed, s.Blocked)
	}
	if s.ByCode["UNAUTHORIZED_MEMORY_WRITE"] != 1 || s.ByCode["FIRST_PERSON_AUTHORITY"] != 1 {
		t.Errorf("by code = %v", s.ByCode)
	}
	if s.First == "" || s.Last == "" || s.Last < s.First {
		t.Errorf("timestamp range %q–%q not ordered", s.First, s.Last)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.ByCode != nil {
		t.Errorf("empty summary = %+v", s)
	}
}
