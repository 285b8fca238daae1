package audit

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Record lines stay small (hashes, not content), but paths can be long.
const maxLineSize = 1 << 20

// ErrKind classifies where chain verification diverged.
type ErrKind string

const (
	ErrParse     ErrKind = "parse"
	ErrHash      ErrKind = "hash"
	ErrSignature ErrKind = "signature"
)

// Report is the outcome of a full-chain verification. It is always
// returned, never panicked: a broken chain is a finding, not a crash.
type Report struct {
	Valid           bool    `json:"valid"`
	RecordsChecked  int     `json:"records_checked"`
	UnsignedSkipped int     `json:"unsigned_skipped"`
	Kind            ErrKind `json:"error_kind,omitempty"`
	Error           string  `json:"error,omitempty"`
	BrokenAt        int     `json:"broken_at,omitempty"`
}

// Verify replays the log from GENESIS, recomputing every chain hash and
// checking every signature against pub. Lines without a chain_hash field
// are legacy records: they are skipped and counted, and do not advance the
// chain. A missing log is trivially valid.
func Verify(path string, pub ed25519.PublicKey) Report {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Report{Valid: true}
	}
	if err != nil {
		return Report{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	report := Report{}
	prev := Genesis
	lineNum := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal(line, &fields); err != nil {
			return broken(report, ErrParse, lineNum, fmt.Sprintf("invalid JSON: %v", err))
		}

		rawHash, chained := fields["chain_hash"]
		if !chained {
			report.UnsignedSkipped++
			continue
		}
		storedHash, ok := rawHash.(string)
		if !ok {
			return broken(report, ErrParse, lineNum, "chain_hash is not a string")
		}
		storedSig, _ := fields["signature"].(string)

		// Recompute the chain hash over everything else in the line, so
		// added or altered fields break the chain like any other edit.
		delete(fields, "chain_hash")
		delete(fields, "signature")
		body, err := json.Marshal(fields)
		if err != nil {
			return broken(report, ErrParse, lineNum, fmt.Sprintf("re-encode: %v", err))
		}
		h := sha256.New()
		h.Write(body)
		h.Write([]byte(prev))
		if computed := hex.EncodeToString(h.Sum(nil)); computed != storedHash {
			return broken(report, ErrHash, lineNum, "chain hash mismatch")
		}

		sig, err := base64.StdEncoding.DecodeString(storedSig)
		if err != nil {
			return broken(report, ErrSignature, lineNum, fmt.Sprintf("signature not base64: %v", err))
		}
		if !ed25519.Verify(pub, []byte(storedHash), sig) {
			return broken(report, ErrSignature, lineNum, "signature verification failed")
		}

		prev = storedHash
		report.RecordsChecked++
	}
	if err := scanner.Err(); err != nil {
		report.Error = fmt.Sprintf("scan: %v", err)
		return report
	}

	report.Valid = true
	return report
}

func broken(r Report, kind ErrKind, line int, msg string) Report {
	r.Kind = kind
	r.BrokenAt = line
	r.Error = msg
	return r
}
