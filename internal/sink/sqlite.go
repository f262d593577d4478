package sink

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gridwatch/collector-cli/internal/model"
)

// SQLiteSink stores rows in a single table keyed by (collection, row_id),
// with the full field map as a JSON blob. Writes upsert per row.
type SQLiteSink struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collected_rows (
	collection TEXT NOT NULL,
	row_id     TEXT NOT NULL,
	fields     TEXT NOT NULL,
	seq        INTEGER,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (collection, row_id)
);

CREATE INDEX IF NOT EXISTS idx_collected_rows_collection ON collected_rows(collection);
`

// NewSQLite opens (creating if needed) a SQLite sink at the given path and
// configures WAL mode.
func NewSQLite(dsn string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite sink: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite sink: exec %s", pragma)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite sink: migrate")
	}
	return &SQLiteSink{db: db}, nil
}

// ReadAll returns a collection's rows in insertion order.
func (s *SQLiteSink) ReadAll(ctx context.Context, collection string) ([]model.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fields FROM collected_rows WHERE collection = ? ORDER BY seq`,
		collection,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite sink: query %s", collection)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Row
	for rows.Next() {
		var fields string
		if err := rows.Scan(&fields); err != nil {
			return nil, eris.Wrap(err, "sqlite sink: scan row")
		}
		var row model.Row
		if err := json.Unmarshal([]byte(fields), &row); err != nil {
			return nil, eris.Wrap(err, "sqlite sink: decode row")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// WriteAll upserts every row under its identifier, in one transaction.
func (s *SQLiteSink) WriteAll(ctx context.Context, collection string, rows []model.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite sink: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO collected_rows (collection, row_id, fields, seq, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (collection, row_id) DO UPDATE SET
			fields = excluded.fields,
			seq = excluded.seq,
			updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite sink: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, row := range rows {
		id := row.ID()
		if id == "" {
			continue
		}
		fields, err := json.Marshal(row)
		if err != nil {
			return eris.Wrap(err, "sqlite sink: encode row")
		}
		if _, err := stmt.ExecContext(ctx, collection, id, string(fields), i); err != nil {
			return eris.Wrapf(err, "sqlite sink: upsert row %s", id)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite sink: commit")
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
