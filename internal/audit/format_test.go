package audit

import (
	"strings"
	"testing"
)

func formatFixture() []Record {
	return []Record{
		{
			Timestamp: "2025-06-01T10:00:00.000Z",
			Actor:     "agent",
			Action:    ActionAllow,
			Resource:  "/workspace/notes.md",
		},
		{
			Timestamp:     "2025-06-01T10:05:30.000Z",
			Actor:         "agent",
			Action:        ActionBlock,
			ViolationCode: "FIRST_PERSON_AUTHORITY",
			Resource:      "/workspace/claims.md",
		},
	}
}

func TestFormatTimelineContainsRecords(t *testing.T) {
	out := FormatTimeline(formatFixture())

	for _, want := range []string{
		"10:00:00",
		"10:05:30",
		"ALLOW",
		"BLOCK",
		"FIRST_PERSON_AUTHORITY",
		"/workspace/notes.md",
		"Summary: 2 total, 1 allowed, 1 blocked",
		"Violations: FIRST_PERSON_AUTHORITY=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("timeline missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTimelineEmpty(t *testing.T) {
	if out := FormatTimeline(nil); out != "No records.\n" {
		t.Errorf("empty timeline = %q", out)
	}
}

func TestFormatTimelineTruncatesLongValues(t *testing.T) {
	rec := formatFixture()[0]
	rec.Resource = "/workspace/" + strings.Repeat("deeply-nested/", 10) + "file.md"
	out := FormatTimeline([]Record{rec})
	if !strings.Contains(out, "...") {
		t.Error("long resource path not truncated")
	}
}

func TestFormatJSONRoundTrips(t *testing.T) {
	out, err := FormatJSON(Summary{Total: 3, Allowed: 2, Blocked: 1})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"total": 3`, `"allowed": 2`, `"blocked": 1`} {
		if !strings.Contains(out, want) {
			t.Errorf("json output missing %q:\n%s", want, out)
		}
	}
}
