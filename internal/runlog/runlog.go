// Package runlog records the outcome of every pipeline run in a small SQLite
// table, so operators can inspect run history from the CLI or the API.
package runlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gridwatch/collector-cli/internal/model"
)

// Entry is one recorded run.
type Entry struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Status      model.RunStatus   `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	TotalRows   int               `json:"total_rows"`
	NewRows     int               `json:"new_rows"`
	FailureKind model.FailureKind `json:"failure_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Log provides read/write access to the run history table.
type Log struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	total_rows   INTEGER NOT NULL DEFAULT 0,
	new_rows     INTEGER NOT NULL DEFAULT 0,
	failure_kind TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source, started_at);
`

// Open opens (creating if needed) the run log at the given SQLite path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "runlog: migrate")
	}
	return &Log{db: db}, nil
}

// Start records the beginning of a run and returns its ID.
func (l *Log) Start(ctx context.Context, source string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		id, source, string(model.RunStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start run for %s", source)
	}
	return id, nil
}

// Complete marks a run as finished with its row counts.
func (l *Log) Complete(ctx context.Context, runID string, report model.Report) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, total_rows = ?, new_rows = ? WHERE id = ?`,
		string(model.RunStatusComplete), time.Now().UTC(), report.Total, report.New, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail marks a run as failed. A run that persisted rows before failing is
// recorded as partial rather than failed.
func (l *Log) Fail(ctx context.Context, runID string, report model.Report, kind model.FailureKind, errMsg string) error {
	status := model.RunStatusFailed
	if report.Partial {
		status = model.RunStatusPartial
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, total_rows = ?, new_rows = ?, failure_kind = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), report.Total, report.New, string(kind), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

// List returns run entries ordered most recent first. A zero limit returns
// everything; a non-empty source filters to that source.
func (l *Log) List(ctx context.Context, source string, limit int) ([]Entry, error) {
	query := `SELECT id, source, status, started_at, completed_at, total_rows, new_rows, failure_kind, error
		 FROM runs`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		var e Entry
		var completed sql.NullTime
		var status, kind string
		if err := rows.Scan(&e.ID, &e.Source, &status, &e.StartedAt, &completed, &e.TotalRows, &e.NewRows, &kind, &e.Error); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		e.Status = model.RunStatus(status)
		e.FailureKind = model.FailureKind(kind)
		if completed.Valid {
			t := completed.Time
			e.CompletedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastSuccess returns the started_at of the most recent complete run for a
// source, or nil if it has never completed.
func (l *Log) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	var t time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT started_at FROM runs WHERE source = ? AND status = ? ORDER BY started_at DESC LIMIT 1`,
		source, string(model.RunStatusComplete),
	).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: last success for %s", source)
	}
	return &t, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}
