package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadAll returns every decodable record in the log, oldest first.
// Malformed lines are skipped; Verify is the tool that reports them.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip malformed lines
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}
	return records, nil
}

// Tail returns the last n records, oldest first.
func Tail(path string, n int) ([]Record, error) {
	records, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

// Filter holds record selection criteria. Zero-valued fields match
// everything.
type Filter struct {
	Actor    string // exact match
	Action   string // exact match, ALLOW or BLOCK
	Code     string // exact violation code match
	Resource string // substring match on the resource path
	Since    string // inclusive lower bound on the timestamp
	Limit    int    // keep only the most recent n matches
}

// Apply returns the records matching the filter, oldest first.
func (f Filter) Apply(records []Record) []Record {
	var out []Record
	for _, rec := range records {
		if f.Actor != "" && rec.Actor != f.Actor {
			continue
		}
		if f.Action != "" && rec.Action != f.Action {
			continue
		}
		if f.Code != "" && rec.ViolationCode != f.Code {
			continue
		}
		if f.Resource != "" && !strings.Contains(rec.Resource, f.Resource) {
			continue
		}
		if f.Since != "" && rec.Timestamp < f.Since {
			continue
		}
		out = append(out, rec)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Summary holds decision counts and the covered range for a replayed log.
type Summary struct {
	Total   int            `json:"total"`
	Allowed int            `json:"allowed"`
	Blocked int            `json:"blocked"`
	ByCode  map[string]int `json:"by_code,omitempty"`
	First   string         `json:"first,omitempty"`
	Last    string         `json:"last,omitempty"`
}

// Summarize replays records into aggregate counts.
func Summarize(records []Record) Summary {
	var s Summary
	for _, rec := range records {
		s.Total++
		switch rec.Action {
		case ActionAllow:
			s.Allowed++
		case ActionBlock:
			s.Blocked++
		}
		if rec.ViolationCode != "" {
			if s.ByCode == nil {
				s.ByCode = make(map[string]int)
			}
			s.ByCode[rec.ViolationCode]++
		}
		if s.First == "" {
			s.First = rec.Timestamp
		}
		s.Last = rec.Timestamp
	}
	return s
}
