// Package audit implements the tamper-evident decision ledger: an
// append-only JSONL log where every record carries a SHA-256 chain hash
// linking it to its predecessor and an Ed25519 signature over that hash.
// The persisted chain head is a cache; the log itself is the source of
// truth and the head is recomputed from it on open.
package audit

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// LogFile is the ledger file name inside the state directory.
	LogFile = "audit.jsonl"
	// HeadFile persists the last chain hash between runs.
	HeadFile = "chain_head.json"

	// TimestampFormat is the layout used in record timestamps.
	TimestampFormat = "2006-01-02T15:04:05.000Z"
)

// Provenance is stamped into every record so a verifier can tell which
// policy configuration produced a decision.
type Provenance struct {
	PolicyHash   string
	RulesVersion string
	Version      string
}

// Ledger is an append-only signed decision log. All appends are serialized;
// a Ledger is safe for concurrent use.
type Ledger struct {
	path     string
	headPath string
	file     *os.File
	keys     *Keys
	prov     Provenance

	mu       sync.Mutex
	lastHash string
	count    int
}

type headState struct {
	LastHash string `json:"last_hash"`
	Updated  string `json:"updated"`
}

// Open opens (or creates) the ledger in dir. The chain head is recovered
// from the last chained line of the log; a stale or missing head file is
// repaired rather than trusted.
func Open(dir string, keys *Keys, prov Provenance) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	path := filepath.Join(dir, LogFile)
	headPath := filepath.Join(dir, HeadFile)

	lastHash, count, err := recoverHead(path)
	if err != nil {
		return nil, err
	}

	// Repair the head file if it disagrees with the log.
	if persisted := readHeadFile(headPath); persisted != lastHash {
		if err := writeHeadFile(headPath, lastHash); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}

	return &Ledger{
		path:     path,
		headPath: headPath,
		file:     file,
		keys:     keys,
		prov:     prov,
		lastHash: lastHash,
		count:    count,
	}, nil
}

// Append chains, signs and writes a decision, returning the completed
// record. The log line is written and synced before the head file is
// updated, so a crash in between is recoverable on the next Open.
func (l *Ledger) Append(d Decision) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		EventID:        NewEventID(),
		Timestamp:      time.Now().UTC().Format(TimestampFormat),
		Actor:          d.Actor,
		Action:         d.Action,
		Resource:       d.Resource,
		ViolationCode:  d.Code,
		HashBefore:     d.HashBefore,
		HashAfter:      d.HashAfter,
		PolicyHash:     l.prov.PolicyHash,
		RulesVersion:   l.prov.RulesVersion,
		GatewayVersion: l.prov.Version,
	}
	rec.ChainHash = rec.chainHash(l.lastHash)
	rec.Signature = base64.StdEncoding.EncodeToString(l.keys.Sign([]byte(rec.ChainHash)))

	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("audit: marshal record: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return Record{}, fmt.Errorf("audit: write record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return Record{}, fmt.Errorf("audit: sync: %w", err)
	}

	l.lastHash = rec.ChainHash
	l.count++
	if err := writeHeadFile(l.headPath, l.lastHash); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Head returns the current chain head hash, or GENESIS for an empty ledger.
func (l *Ledger) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// Count returns the number of records in the log, including any written
// before this ledger was opened.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Path returns the ledger log path.
func (l *Ledger) Path() string {
	return l.path
}

// Close flushes and closes the log file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// recoverHead scans the log for the last chained line, returning its
// chain hash (GENESIS if none) and the number of record lines seen.
func recoverHead(path string) (string, int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Genesis, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	last := Genesis
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		count++
		var rec struct {
			ChainHash string `json:"chain_hash"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.ChainHash != "" {
			last = rec.ChainHash
		}
	}
	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("audit: scan existing log: %w", err)
	}
	return last, count, nil
}

func readHeadFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var state headState
	if err := json.Unmarshal(data, &state); err != nil {
		return ""
	}
	return state.LastHash
}

// writeHeadFile persists the head via temp file and rename so a partial
// write can never corrupt it.
func writeHeadFile(path, lastHash string) error {
	state := headState{
		LastHash: lastHash,
		Updated:  time.Now().UTC().Format(TimestampFormat),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("audit: marshal head: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("audit: write head: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("audit: replace head: %w", err)
	}
	return nil
}
