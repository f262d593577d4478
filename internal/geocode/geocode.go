// Package geocode resolves UK postcodes to coordinates via postcodes.io,
// memoizing successful lookups for the lifetime of one pipeline run.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Coords is a latitude/longitude pair.
type Coords struct {
	Lat float64
	Lng float64
}

// Options configures the resolver.
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// Resolver looks up postcodes with a per-run cache. It is owned by a single
// pipeline run and is not safe for concurrent use; runs never share one.
type Resolver struct {
	baseURL string
	client  *http.Client
	cache   map[string]Coords
}

// New creates a Resolver. Failed lookups are not cached, so a postcode that
// failed once may be retried later in the run.
func New(opts Options) *Resolver {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.postcodes.io"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Resolver{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		cache:   make(map[string]Coords),
	}
}

// postcodeResponse is the postcodes.io lookup payload.
type postcodeResponse struct {
	Result struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"result"`
}

// Lookup resolves a postcode to coordinates. Coordinate resolution is
// best-effort: any failure (network, non-200, malformed payload) returns
// ok=false and never an error, so a missing geocode cannot abort a batch.
func (r *Resolver) Lookup(ctx context.Context, postcode string) (Coords, bool) {
	pc := strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
	if pc == "" {
		return Coords{}, false
	}
	if c, ok := r.cache[pc]; ok {
		return c, true
	}

	c, ok := r.fetch(ctx, pc)
	if ok {
		r.cache[pc] = c
	}
	return c, ok
}

func (r *Resolver) fetch(ctx context.Context, pc string) (Coords, bool) {
	reqURL := fmt.Sprintf("%s/postcodes/%s", r.baseURL, url.PathEscape(pc))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Coords{}, false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		zap.L().Debug("postcode lookup failed", zap.String("postcode", pc), zap.Error(err))
		return Coords{}, false
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Coords{}, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Coords{}, false
	}

	var pr postcodeResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return Coords{}, false
	}
	if pr.Result.Latitude == nil || pr.Result.Longitude == nil {
		return Coords{}, false
	}

	return Coords{Lat: *pr.Result.Latitude, Lng: *pr.Result.Longitude}, true
}

// CacheSize returns the number of memoized postcodes, for run summaries.
func (r *Resolver) CacheSize() int {
	return len(r.cache)
}
