package sink

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the sink needs; pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresSink stores rows in a table keyed by (collection, row_id) with the
// field map as JSONB.
type PostgresSink struct {
	pool    Pool
	closeFn func()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS collected_rows (
	collection TEXT NOT NULL,
	row_id     TEXT NOT NULL,
	fields     JSONB NOT NULL,
	seq        INTEGER,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, row_id)
)`

// NewPostgres connects a pool and ensures the schema exists.
func NewPostgres(ctx context.Context, connString string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres sink: connect")
	}
	s := &PostgresSink{pool: pool, closeFn: pool.Close}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres sink: migrate")
	}
	return s, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests.
func NewPostgresFromPool(pool Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// ReadAll returns a collection's rows in insertion order.
func (s *PostgresSink) ReadAll(ctx context.Context, collection string) ([]model.Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fields FROM collected_rows WHERE collection = $1 ORDER BY seq`,
		collection,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres sink: query %s", collection)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		var fields []byte
		if err := rows.Scan(&fields); err != nil {
			return nil, eris.Wrap(err, "postgres sink: scan row")
		}
		var row model.Row
		if err := json.Unmarshal(fields, &row); err != nil {
			return nil, eris.Wrap(err, "postgres sink: decode row")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const upsertRowSQL = `
	INSERT INTO collected_rows (collection, row_id, fields, seq, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (collection, row_id) DO UPDATE SET
		fields = EXCLUDED.fields,
		seq = EXCLUDED.seq,
		updated_at = now()`

const insertRowSQL = `
	INSERT INTO collected_rows (collection, row_id, fields, seq, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (collection, row_id) DO NOTHING`

// WriteAll upserts every row in one transaction. If the transactional upsert
// fails it falls back to per-row inserts that skip conflicts, trading update
// semantics for getting new rows durable.
func (s *PostgresSink) WriteAll(ctx context.Context, collection string, rows []model.Row) error {
	if err := s.writeTx(ctx, collection, rows); err != nil {
		zap.L().Warn("postgres sink: upsert failed, falling back to insert-only",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return s.writeInsertOnly(ctx, collection, rows)
	}
	return nil
}

func (s *PostgresSink) writeTx(ctx context.Context, collection string, rows []model.Row) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres sink: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i, row := range rows {
		id := row.ID()
		if id == "" {
			continue
		}
		fields, err := json.Marshal(row)
		if err != nil {
			return eris.Wrap(err, "postgres sink: encode row")
		}
		if _, err := tx.Exec(ctx, upsertRowSQL, collection, id, fields, i); err != nil {
			return eris.Wrapf(err, "postgres sink: upsert row %s", id)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres sink: commit")
}

func (s *PostgresSink) writeInsertOnly(ctx context.Context, collection string, rows []model.Row) error {
	var lastErr error
	var failed int
	for i, row := range rows {
		id := row.ID()
		if id == "" {
			continue
		}
		fields, err := json.Marshal(row)
		if err != nil {
			return eris.Wrap(err, "postgres sink: encode row")
		}
		if _, err := s.pool.Exec(ctx, insertRowSQL, collection, id, fields, i); err != nil {
			failed++
			lastErr = err
		}
	}
	if lastErr != nil {
		return eris.Wrapf(lastErr, "postgres sink: insert-only fallback failed for %d rows", failed)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
