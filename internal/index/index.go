// Package index mirrors the audit log into SQLite for ad hoc querying. The
// log stays the source of truth; the index is disposable and can be rebuilt
// from the log at any time.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wardgate/wardgate/internal/audit"

	_ "modernc.org/sqlite"
)

// File is the index database file name inside the state directory.
const File = "decisions.db"

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	event_id       TEXT PRIMARY KEY,
	timestamp      TEXT NOT NULL,
	actor          TEXT NOT NULL,
	action         TEXT NOT NULL,
	resource       TEXT NOT NULL,
	violation_code TEXT NOT NULL DEFAULT '',
	hash_before    TEXT NOT NULL DEFAULT '',
	hash_after     TEXT NOT NULL DEFAULT '',
	chain_hash     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(action);
CREATE INDEX IF NOT EXISTS idx_decisions_code ON decisions(violation_code);
`

// Store is the decision index.
type Store struct {
	db *sql.DB
}

// Open opens or creates the index database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sync reads the audit log and upserts every record by event id. Re-running
// against an unchanged log is a no-op. Returns the number of records
// processed.
func (s *Store) Sync(ctx context.Context, logPath string) (int, error) {
	records, err := audit.ReadAll(logPath)
	if err != nil {
		return 0, fmt.Errorf("read audit log: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO decisions (
		event_id, timestamp, actor, action, resource, violation_code, hash_before, hash_after, chain_hash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.EventID, r.Timestamp, r.Actor, r.Action, r.Resource,
			r.ViolationCode, r.HashBefore, r.HashAfter, r.ChainHash,
		); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", r.EventID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

// Count returns the number of indexed decisions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Query returns indexed decisions matching the filter in chronological
// order. A Limit keeps the most recent matches.
func (s *Store) Query(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, f.Action)
	}
	if f.Code != "" {
		clauses = append(clauses, "violation_code = ?")
		args = append(args, f.Code)
	}
	if f.Resource != "" {
		clauses = append(clauses, "resource LIKE ?")
		args = append(args, "%"+f.Resource+"%")
	}
	if f.Since != "" {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Since)
	}

	query := `SELECT event_id, timestamp, actor, action, resource, violation_code, hash_before, hash_after, chain_hash FROM decisions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var r audit.Record
		if err := rows.Scan(
			&r.EventID, &r.Timestamp, &r.Actor, &r.Action, &r.Resource,
			&r.ViolationCode, &r.HashBefore, &r.HashAfter, &r.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	// Rows came back newest first; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
