// Package session builds the outbound HTTP client shared by all fetchers:
// bounded retry on transient server errors, a fixed identifying header set,
// and per-host politeness rate limits.
package session

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures the session client.
type Options struct {
	UserAgent  string
	Referer    string
	Timeout    time.Duration
	MaxRetries int
	// BackoffBase is the first retry delay; each attempt doubles it.
	BackoffBase time.Duration
	// RateLimits maps host to requests-per-second. Hosts not listed get a
	// generous default limiter.
	RateLimits map[string]float64
}

// Client is a reusable outbound HTTP client. Retries are restricted to GET
// requests and to server-side failures; 4xx responses are returned to the
// caller untouched so the pager can apply its own 429 policy.
type Client struct {
	http     *http.Client
	opts     Options
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
}

// New creates a session client with the given options.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "collector-cli/1.0"
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	limiters := make(map[string]*rate.Limiter, len(opts.RateLimits))
	for host, rps := range opts.RateLimits {
		limiters[host] = rate.NewLimiter(rate.Limit(rps), 1)
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
		fallback: rate.NewLimiter(20, 20),
	}
}

func (c *Client) limiterFor(u *url.URL) *rate.Limiter {
	if lim, ok := c.limiters[u.Host]; ok {
		return lim
	}
	return c.fallback
}

// Get issues a GET request with the identifying header set, retrying
// transient failures with exponential backoff. The response body is open on
// return; the caller must close it. A 429 response is never retried here.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "session: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.opts.Referer != "" {
		req.Header.Set("Referer", c.opts.Referer)
	}

	lim := c.limiterFor(req.URL)

	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "session: rate limiter wait")
		}

		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "session: request aborted")
			}
			lastErr = err
			zap.L().Warn("request failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("session: http %d from %s", resp.StatusCode, rawURL)
			zap.L().Warn("server error, retrying",
				zap.String("url", rawURL),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "session: all retries exhausted")
}

// GetJSON fetches the URL and returns the raw response body for a 2xx
// response. Non-2xx statuses are returned alongside the body bytes so the
// caller can branch on them.
func (c *Client) GetJSON(ctx context.Context, rawURL string) (int, http.Header, []byte, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, eris.Wrap(err, "session: read body")
	}
	return resp.StatusCode, resp.Header, body, nil
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	base := c.opts.BackoffBase
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RetryAfter parses a Retry-After header into a duration, returning def when
// the header is absent or unparseable. Both delta-seconds and HTTP-date forms
// are accepted.
func RetryAfter(h http.Header, def time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return def
}

// IsTimeout reports whether the error chain contains a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
