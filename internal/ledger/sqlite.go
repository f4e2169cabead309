// Package ledger persists run records and their transcripts to sqlite so
// past approval sessions stay reviewable after the process exits.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"sqlcopilot/internal/transcript"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

type RunRecord struct {
	ID        string
	TargetID  string
	Message   string
	Status    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EntryRecord struct {
	RunID string
	Seq   int64
	Entry transcript.Entry
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  target_id TEXT NOT NULL,
  message TEXT NOT NULL,
  status TEXT NOT NULL,
  error_text TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_target_created ON runs(target_id, created_at);
CREATE TABLE IF NOT EXISTS entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  kind TEXT NOT NULL,
  ts TEXT NOT NULL,
  entry_json TEXT NOT NULL,
  UNIQUE(run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_entries_run_seq ON entries(run_id, seq);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RunStarted records a fresh run. The row's status is filled in by the
// RunStatus call that follows immediately.
func (s *Store) RunStarted(ctx context.Context, runID, targetID, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(run_id, target_id, message, status, created_at, updated_at)
		 VALUES (?, ?, ?, '', ?, ?)`,
		runID, targetID, message, now, now,
	)
	return err
}

func (s *Store) RunStatus(ctx context.Context, runID, status, errText string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status=?, error_text=?, updated_at=? WHERE run_id=?`,
		status, errText, time.Now().UTC().Format(time.RFC3339Nano), runID,
	)
	return err
}

// RunEntry appends one transcript entry. Replaying the same seq is a no-op
// so a retried write cannot duplicate history.
func (s *Store) RunEntry(ctx context.Context, runID string, seq int64, entry transcript.Entry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO entries(run_id, seq, kind, ts, entry_json)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, seq, entry.Kind, entry.TS.UTC().Format(time.RFC3339Nano), string(entryJSON),
	)
	return err
}

func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var out RunRecord
	var tsCreated, tsUpdated string

	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, target_id, message, status, error_text, created_at, updated_at
		 FROM runs WHERE run_id=?`,
		runID,
	)
	if err := row.Scan(&out.ID, &out.TargetID, &out.Message, &out.Status, &out.Error, &tsCreated, &tsUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunRecord{}, ErrNotFound
		}
		return RunRecord{}, err
	}
	out.CreatedAt, _ = time.Parse(time.RFC3339Nano, tsCreated)
	out.UpdatedAt, _ = time.Parse(time.RFC3339Nano, tsUpdated)
	return out, nil
}

// ListRuns returns a target's runs newest first. An empty targetID lists
// runs across all targets.
func (s *Store) ListRuns(ctx context.Context, targetID string, limit int64) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT run_id, target_id, message, status, error_text, created_at, updated_at
	          FROM runs`
	args := []any{}
	if targetID != "" {
		query += ` WHERE target_id=?`
		args = append(args, targetID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		var tsCreated, tsUpdated string
		if err := rows.Scan(&r.ID, &r.TargetID, &r.Message, &r.Status, &r.Error, &tsCreated, &tsUpdated); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, tsCreated)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, tsUpdated)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, runID string, fromSeq, limit int64) ([]EntryRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, seq, entry_json
		 FROM entries WHERE run_id=? AND seq>=?
		 ORDER BY seq ASC LIMIT ?`,
		runID, fromSeq, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []EntryRecord{}
	for rows.Next() {
		var rec EntryRecord
		var entryJSON string
		if err := rows.Scan(&rec.RunID, &rec.Seq, &entryJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(entryJSON), &rec.Entry); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
