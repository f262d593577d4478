// Package pager drives repeated paginated requests against a search endpoint
// over a bounded date window, handling rate limits and termination signals.
package pager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/session"
)

// RateLimitPolicy decides what happens when a page returns HTTP 429.
type RateLimitPolicy int

const (
	// Wait sleeps for the server-specified duration and retries the same
	// page once. Used by short rolling-window refreshes.
	Wait RateLimitPolicy = iota
	// Abort stops the fetch immediately with a RateLimitError so the caller
	// can persist what it has. Used by long historical back-fills.
	Abort
)

// Options configures a Pager.
type Options struct {
	PageSize        int
	PolitenessDelay time.Duration
	// DefaultRetryAfter applies when a 429 has no Retry-After header.
	DefaultRetryAfter time.Duration
	Policy            RateLimitPolicy
}

// Query describes one paginated search.
type Query struct {
	// Endpoint is the full search URL without paging parameters.
	Endpoint string
	// Search is the free-text filter expression, empty to omit.
	Search string
	// Extra carries additional fixed query parameters (select, sort, ...).
	Extra url.Values
}

// Pager fetches all pages of a search query sequentially. It holds no state
// across fetches; a pagination cursor lives only for the duration of one
// FetchWindow call.
type Pager struct {
	client *session.Client
	opts   Options
}

// New creates a Pager on top of a session client.
func New(client *session.Client, opts Options) *Pager {
	if opts.PageSize <= 0 {
		opts.PageSize = 300
	}
	if opts.DefaultRetryAfter <= 0 {
		opts.DefaultRetryAfter = 60 * time.Second
	}
	return &Pager{client: client, opts: opts}
}

// page is the decoded shape of one search response. The upstream API returns
// either a flat record list under "records" or a GeoJSON-style feature
// collection; "records" itself can be a nested feature collection.
type page struct {
	Error    string          `json:"error"`
	Records  json.RawMessage `json:"records"`
	Features []map[string]any `json:"features"`
	Total    *int            `json:"total"`
	From     *int            `json:"from"`
	To       *int            `json:"to"`
}

// FetchWindow retrieves every record of the query within the window.
// Records accumulated before a failure are returned alongside the error so
// the driver can persist partial progress. A window with zero results is not
// an error.
func (p *Pager) FetchWindow(ctx context.Context, q Query, w Window) ([]map[string]any, error) {
	log := zap.L().With(zap.String("window", w.String()))

	w = w.Clamped(time.Now().UTC())

	var all []map[string]any
	for pageNum := 1; ; pageNum++ {
		pg, err := p.fetchPage(ctx, q, w, pageNum)
		if err != nil {
			return all, err
		}

		records, err := pg.records()
		if err != nil {
			return all, err
		}

		if len(records) == 0 {
			log.Debug("no records on page", zap.Int("page", pageNum))
			return all, nil
		}

		all = append(all, records...)
		log.Info("fetched page",
			zap.Int("page", pageNum),
			zap.Int("records", len(records)),
			zap.Int("cumulative", len(all)),
		)

		// Termination: a reported "to" index reaching the total, or a short
		// page. Not every payload carries both signals.
		if pg.To != nil && pg.Total != nil && *pg.To >= *pg.Total {
			return all, nil
		}
		if len(records) < p.opts.PageSize {
			return all, nil
		}

		if err := sleepCtx(ctx, p.opts.PolitenessDelay); err != nil {
			return all, err
		}
	}
}

// fetchPage requests one page, applying the configured 429 policy.
func (p *Pager) fetchPage(ctx context.Context, q Query, w Window, pageNum int) (*page, error) {
	pg, retryAfter, err := p.requestPage(ctx, q, w, pageNum)
	if err != nil {
		return nil, err
	}
	if retryAfter > 0 {
		if p.opts.Policy == Abort {
			return nil, &RateLimitError{RetryAfter: retryAfter}
		}
		zap.L().Warn("rate limited, waiting",
			zap.Duration("retry_after", retryAfter),
			zap.Int("page", pageNum),
		)
		if err := sleepCtx(ctx, retryAfter); err != nil {
			return nil, err
		}
		pg, retryAfter, err = p.requestPage(ctx, q, w, pageNum)
		if err != nil {
			return nil, err
		}
		if retryAfter > 0 {
			// Still limited after the single bounded wait.
			return nil, &RateLimitError{RetryAfter: retryAfter}
		}
	}
	return pg, nil
}

// requestPage performs a single page request. A 429 is reported via a
// non-zero retryAfter rather than an error so fetchPage can apply policy.
func (p *Pager) requestPage(ctx context.Context, q Query, w Window, pageNum int) (*page, time.Duration, error) {
	status, header, body, err := p.client.GetJSON(ctx, p.pageURL(q, w, pageNum))
	if err != nil {
		return nil, 0, eris.Wrapf(err, "pager: fetch page %d", pageNum)
	}

	if status == http.StatusTooManyRequests {
		ra := session.RetryAfter(header, p.opts.DefaultRetryAfter)
		if ra <= 0 {
			ra = p.opts.DefaultRetryAfter
		}
		return nil, ra, nil
	}
	if status != http.StatusOK {
		return nil, 0, &APIError{Status: status, Message: truncate(string(body), 200)}
	}

	var pg page
	if err := json.Unmarshal(body, &pg); err != nil {
		return nil, 0, eris.Wrapf(err, "pager: decode page %d", pageNum)
	}
	if pg.Error != "" {
		return nil, 0, &APIError{Message: pg.Error}
	}
	return &pg, 0, nil
}

// pageURL builds the request URL for one page of the query.
func (p *Pager) pageURL(q Query, w Window, pageNum int) string {
	params := url.Values{}
	for k, vs := range q.Extra {
		params[k] = vs
	}
	if !w.IsZero() {
		params.Set("start_date", w.Start.Format("2006-01-02"))
		params.Set("end_date", w.End.Format("2006-01-02"))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	params.Set("pg_sz", strconv.Itoa(p.opts.PageSize))
	params.Set("page", strconv.Itoa(pageNum))
	return fmt.Sprintf("%s?%s", q.Endpoint, params.Encode())
}

// records extracts the page's record list, supporting both payload shapes.
func (pg *page) records() ([]map[string]any, error) {
	if len(pg.Features) > 0 {
		return pg.Features, nil
	}
	if len(pg.Records) == 0 {
		return nil, nil
	}

	// "records" is usually a flat list, but some responses nest a feature
	// collection one level deeper.
	var flat []map[string]any
	if err := json.Unmarshal(pg.Records, &flat); err == nil {
		return flat, nil
	}
	var nested struct {
		Features []map[string]any `json:"features"`
	}
	if err := json.Unmarshal(pg.Records, &nested); err == nil {
		return nested.Features, nil
	}
	return nil, eris.New("pager: unrecognized records payload shape")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
