// Package gateway implements the staged write protocol. Content is written
// to a private staging area first, validated there, and only an allowed
// write is moved to its destination. The destination therefore ends in
// exactly one of two states: untouched, or holding the validated content.
package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/rules"
)

// Gateway validates staged writes and records every decision.
type Gateway struct {
	stagingDir string
	checker    *rules.Checker
	ledger     *audit.Ledger
	actor      string
}

// Outcome is the result of a validated write. A blocked write is a normal
// outcome, not an error; errors are reserved for I/O failures.
type Outcome struct {
	Allowed  bool         `json:"allowed"`
	Code     string       `json:"code,omitempty"`     // violation code when blocked
	Advisory string       `json:"advisory,omitempty"` // advisory tag when allowed
	Message  string       `json:"message"`
	Record   audit.Record `json:"record"`
}

// New returns a gateway staging into stagingDir and recording decisions
// as actor.
func New(stagingDir string, checker *rules.Checker, ledger *audit.Ledger, actor string) *Gateway {
	return &Gateway{
		stagingDir: stagingDir,
		checker:    checker,
		ledger:     ledger,
		actor:      actor,
	}
}

// StagingPath returns the staging location for a destination path. The
// name carries a short hash of the full destination so two files with the
// same base name cannot collide.
func (g *Gateway) StagingPath(target string) string {
	h := sha256.Sum256([]byte(target))
	return filepath.Join(g.stagingDir, hex.EncodeToString(h[:])[:8]+"_"+filepath.Base(target))
}

// Stage writes content to the staging area and returns the staged path.
func (g *Gateway) Stage(content []byte, target string) (string, error) {
	if err := os.MkdirAll(g.stagingDir, 0700); err != nil {
		return "", fmt.Errorf("gateway: create staging dir: %w", err)
	}
	staged := g.StagingPath(target)
	if err := os.WriteFile(staged, content, 0644); err != nil {
		return "", fmt.Errorf("gateway: write staging file: %w", err)
	}
	return staged, nil
}

// ValidateAndCommit validates the staged file's content against the rules
// and either moves it to target (allow) or deletes it (block). Either way
// the decision is appended to the ledger before returning.
func (g *Gateway) ValidateAndCommit(staged, target string) (Outcome, error) {
	content, err := os.ReadFile(staged)
	if err != nil {
		return Outcome{}, fmt.Errorf("gateway: read staging file: %w", err)
	}

	hashStaged := audit.HashContent(content)
	hashBefore := audit.HashFile(target) // may be FILE_NOT_FOUND

	verdict := g.checker.Check(string(content), target)

	if verdict.Action == rules.Block {
		rec, err := g.ledger.Append(audit.Decision{
			Actor:      g.actor,
			Action:     audit.ActionBlock,
			Resource:   target,
			Code:       verdict.Code,
			HashBefore: hashBefore,
			HashAfter:  hashStaged,
		})
		if err != nil {
			return Outcome{}, err
		}
		// The staged content never reaches the destination.
		if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
			return Outcome{}, fmt.Errorf("gateway: remove staged file: %w", err)
		}
		return Outcome{
			Code:    verdict.Code,
			Message: "BLOCKED: " + verdict.Code,
			Record:  rec,
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Outcome{}, fmt.Errorf("gateway: create target dir: %w", err)
	}
	if err := moveFile(staged, target); err != nil {
		return Outcome{}, fmt.Errorf("gateway: commit: %w", err)
	}

	rec, err := g.ledger.Append(audit.Decision{
		Actor:      g.actor,
		Action:     audit.ActionAllow,
		Resource:   target,
		HashBefore: hashBefore,
		HashAfter:  audit.HashFile(target),
	})
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Allowed: true,
		Message: "ALLOWED: write committed",
		Record:  rec,
	}
	if verdict.Advisory != "" {
		out.Advisory = verdict.Advisory
		out.Message = "ALLOWED with advisory: " + verdict.Advisory
	}
	return out, nil
}

// Write is the full staged write flow: stage, validate, commit or reject.
func (g *Gateway) Write(content []byte, target string) (Outcome, error) {
	staged, err := g.Stage(content, target)
	if err != nil {
		return Outcome{}, err
	}
	return g.ValidateAndCommit(staged, target)
}

// Pending lists files sitting in the staging area, sorted by name.
func (g *Gateway) Pending() ([]string, error) {
	entries, err := os.ReadDir(g.stagingDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gateway: read staging dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(g.stagingDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Clear removes every staged file and returns how many were removed.
func (g *Gateway) Clear() (int, error) {
	paths, err := g.Pending()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("gateway: clear staging: %w", err)
		}
		removed++
	}
	return removed, nil
}

// moveFile renames src to dst, falling back to copy+remove when they sit
// on different filesystems. The rename path is the atomic one; staging
// normally lives on the same filesystem as the workspace.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
