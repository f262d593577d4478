// Package source defines the data sources the pipeline can collect from and
// the registry that maps source names to implementations.
package source

import (
	"context"
	"time"

	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pager"
)

// Source is one collectable upstream. Implementations are single-run values:
// the driver constructs a fresh set per run, so per-run state (geocode caches
// and the like) lives inside the source without locking.
type Source interface {
	// Name is the registry key, used on the CLI and in run logs.
	Name() string
	// Collection names the sink collection rows persist into. Usually the
	// same as Name.
	Collection() string
	// Policy decides how incoming rows merge with persisted ones.
	Policy() dedupe.Policy
	// Windows returns the date windows to fetch, most recent first. A
	// single zero window means the source is not date-windowed.
	Windows(now time.Time) []pager.Window
	// FetchWindow retrieves the raw records of one window. Records gathered
	// before a failure are returned alongside the error.
	FetchWindow(ctx context.Context, w pager.Window) ([]map[string]any, error)
	// Normalize converts one raw record into a row.
	Normalize(ctx context.Context, raw map[string]any) (model.Row, error)
	// Filter reports whether a normalized row should be kept.
	Filter(row model.Row) bool
}
