package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders records as a human-readable text timeline with a
// summary footer.
func FormatTimeline(records []Record) string {
	if len(records) == 0 {
		return "No records.\n"
	}

	s := Summarize(records)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s–%s UTC\n", formatDateTime(s.First), formatTimeOnly(s.Last)))
	b.WriteString(separator + "\n")

	for _, rec := range records {
		code := rec.ViolationCode
		if code == "" {
			code = "-"
		}
		b.WriteString(fmt.Sprintf("%-10s %-6s %-28s %-8s %s\n",
			formatTimeOnly(rec.Timestamp),
			rec.Action,
			truncate(code, 28),
			truncate(rec.Actor, 8),
			truncate(rec.Resource, 44)))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(s))
	return b.String()
}

// FormatJSON renders v as indented JSON.
func FormatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal: %w", err)
	}
	return string(data), nil
}

func formatSummary(s Summary) string {
	parts := []string{fmt.Sprintf("%d total", s.Total)}
	if s.Allowed > 0 {
		parts = append(parts, fmt.Sprintf("%d allowed", s.Allowed))
	}
	if s.Blocked > 0 {
		parts = append(parts, fmt.Sprintf("%d blocked", s.Blocked))
	}

	line := "Summary: " + strings.Join(parts, ", ") + "\n"
	if len(s.ByCode) == 0 {
		return line
	}

	codes := make([]string, 0, len(s.ByCode))
	for code := range s.ByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	var counts []string
	for _, code := range codes {
		counts = append(counts, fmt.Sprintf("%s=%d", code, s.ByCode[code]))
	}
	return line + "Violations: " + strings.Join(counts, ", ") + "\n"
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
