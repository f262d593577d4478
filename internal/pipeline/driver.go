// Package pipeline drives one collection run end to end: fetch windows,
// normalize, filter, merge against the persisted collection, persist, and
// record the run.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/runlog"
	"github.com/gridwatch/collector-cli/internal/session"
	"github.com/gridwatch/collector-cli/internal/sink"
	"github.com/gridwatch/collector-cli/internal/source"
)

// ErrAlreadyRunning signals that a run for the same source is in flight.
// Runs for distinct sources proceed concurrently; two runs of one source
// would race on its collection.
var ErrAlreadyRunning = eris.New("pipeline: source is already being scraped")

// Driver owns the sink and run log and executes runs one source at a time.
type Driver struct {
	sink sink.Sink
	runs *runlog.Log

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Driver. The run log is optional; without it runs are not
// recorded.
func New(s sink.Sink, runs *runlog.Log) *Driver {
	return &Driver{
		sink:  s,
		runs:  runs,
		locks: make(map[string]*sync.Mutex),
	}
}

func (d *Driver) lockFor(name string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[name]
	if !ok {
		l = &sync.Mutex{}
		d.locks[name] = l
	}
	return l
}

// Run executes one full collection run for a source. If the same source is
// already running, Run returns ErrAlreadyRunning immediately without
// touching the sink. On failure after rows were persisted, the returned
// report has Partial set and accompanies the error.
func (d *Driver) Run(ctx context.Context, src source.Source) (*model.Report, error) {
	lock := d.lockFor(src.Name())
	if !lock.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer lock.Unlock()

	started := time.Now()
	log := zap.L().With(zap.String("source", src.Name()))

	var runID string
	if d.runs != nil {
		var err error
		runID, err = d.runs.Start(ctx, src.Name())
		if err != nil {
			// Run log failures must not block collection.
			log.Warn("could not record run start", zap.Error(err))
		}
	}

	report, err := d.collect(ctx, src, log)
	report.Source = src.Name()
	report.Elapsed = time.Since(started)

	if d.runs != nil && runID != "" {
		if err != nil {
			kind := ClassifyFailure(err)
			if logErr := d.runs.Fail(ctx, runID, *report, kind, err.Error()); logErr != nil {
				log.Warn("could not record run failure", zap.Error(logErr))
			}
		} else {
			if logErr := d.runs.Complete(ctx, runID, *report); logErr != nil {
				log.Warn("could not record run completion", zap.Error(logErr))
			}
		}
	}

	if err != nil {
		return report, err
	}
	log.Info("run complete",
		zap.Int("total", report.Total),
		zap.Int("new", report.New),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// collect walks the source's windows, accumulating normalized rows, and
// merges them into the persisted collection. A window failure persists
// whatever accumulated before it.
func (d *Driver) collect(ctx context.Context, src source.Source, log *zap.Logger) (*model.Report, error) {
	report := &model.Report{}

	existing, err := d.sink.ReadAll(ctx, src.Collection())
	if err != nil {
		return report, eris.Wrapf(err, "pipeline: load collection %s", src.Collection())
	}
	report.Total = len(existing)

	seen := make(map[string]bool)
	var batch []model.Row

	var fetchErr error
	for _, w := range src.Windows(time.Now().UTC()) {
		records, err := src.FetchWindow(ctx, w)

		// Normalize what arrived even when the window failed partway.
		for _, raw := range records {
			row, normErr := src.Normalize(ctx, raw)
			if normErr != nil {
				log.Debug("dropping record", zap.Error(normErr))
				continue
			}
			if seen[row.ID()] {
				continue
			}
			if !src.Filter(row) {
				continue
			}
			seen[row.ID()] = true
			batch = append(batch, row)
		}

		if err != nil {
			fetchErr = eris.Wrapf(err, "pipeline: window %s", w.String())
			break
		}
	}

	merged, summary := dedupe.Merge(existing, batch, src.Policy())
	report.Total = summary.Total
	report.New = summary.Added
	report.NewByStatus = summary.NewByStatus
	report.NewByAuthority = summary.NewByAuthority

	// Persist even on failure so a rate-limit abort keeps its progress.
	if summary.Added > 0 || summary.Updated > 0 || fetchErr == nil {
		if err := d.sink.WriteAll(ctx, src.Collection(), merged); err != nil {
			if fetchErr != nil {
				log.Error("could not persist partial batch", zap.Error(err))
				return report, fetchErr
			}
			return report, eris.Wrapf(err, "pipeline: persist collection %s", src.Collection())
		}
		if fetchErr != nil && summary.Added > 0 {
			report.Partial = true
			log.Warn("persisted partial batch before failure",
				zap.Int("new", summary.Added),
			)
		}
	}

	return report, fetchErr
}

// ClassifyFailure maps a run error to its failure kind so callers can signal
// each case distinctly.
func ClassifyFailure(err error) model.FailureKind {
	if err == nil {
		return model.FailureNone
	}
	if errors.Is(err, ErrAlreadyRunning) {
		return model.FailureAlreadyRunning
	}
	var rle *pager.RateLimitError
	if errors.As(err, &rle) {
		return model.FailureRateLimited
	}
	if errors.Is(err, context.DeadlineExceeded) || session.IsTimeout(err) {
		return model.FailureTimeout
	}
	return model.FailureUpstream
}

// RetryAfterOf extracts the server-requested wait from a rate-limit failure,
// or zero when the error is not a rate limit.
func RetryAfterOf(err error) time.Duration {
	var rle *pager.RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}
