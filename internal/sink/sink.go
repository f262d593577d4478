// Package sink persists collections of normalized rows. Each collection is
// the durable row set for one data source, keyed by row identifier.
package sink

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/gridwatch/collector-cli/internal/model"
)

// Sink is the persistence contract the pipeline writes against. ReadAll of a
// collection after WriteAll returns every previously persisted row plus the
// newly written ones; a missing collection reads as empty, not an error.
type Sink interface {
	ReadAll(ctx context.Context, collection string) ([]model.Row, error)
	WriteAll(ctx context.Context, collection string, rows []model.Row) error
	Close() error
}

// Config selects and configures a sink backend.
type Config struct {
	Driver      string
	DataDir     string
	SQLitePath  string
	DatabaseURL string
}

// Open creates the sink named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	switch cfg.Driver {
	case "csv":
		return NewCSV(cfg.DataDir), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("sink: unknown driver %q (valid: csv, sqlite, postgres)", cfg.Driver)
	}
}
