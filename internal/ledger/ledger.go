// Package ledger keeps a local history of interpolation runs in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/veloclimat/veloclimat/internal/pipeline"
)

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	trigger     TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Ledger records run summaries.
type Ledger struct {
	db     *sql.DB
	retain int
}

// Open opens or creates the ledger at path. An empty path or ":memory:" uses
// an in-memory database. retain bounds the number of runs kept; zero keeps
// every run.
func Open(path string, retain int) (*Ledger, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database is private to its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	return &Ledger{db: db, retain: retain}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Name identifies the ledger as a run sink.
func (l *Ledger) Name() string {
	return "ledger"
}

// Publish records the run of report.
func (l *Ledger) Publish(ctx context.Context, report *pipeline.Report) error {
	return l.Record(ctx, report.Run)
}

// Record stores run, replacing a previous record with the same id, and prunes
// the oldest runs beyond the retention.
func (l *Ledger) Record(ctx context.Context, run *pipeline.RunResult) error {
	summary, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, trigger, status, started_at, finished_at, error_kind, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Trigger, run.Status, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.ErrorKind, string(summary))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if l.retain > 0 {
		_, err = l.db.ExecContext(ctx, `
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
			)
		`, l.retain)
		if err != nil {
			return fmt.Errorf("prune runs: %w", err)
		}
	}
	return nil
}

// List returns up to limit runs, most recent first.
func (l *Ledger) List(ctx context.Context, limit int) ([]pipeline.RunResult, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT summary FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []pipeline.RunResult
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run pipeline.RunResult
		if err := json.Unmarshal([]byte(summary), &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run with id.
func (l *Ledger) Get(ctx context.Context, id string) (*pipeline.RunResult, error) {
	var summary string
	err := l.db.QueryRowContext(ctx, `SELECT summary FROM runs WHERE id = ?`, id).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	var run pipeline.RunResult
	if err := json.Unmarshal([]byte(summary), &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}
