package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/session"
)

const rtpiListingHTML = `<html><body>
<nav><a href="/events/">All events</a><a href="/about/">About</a></nav>
<main>
  <a href="/events/2026/planning-law-masterclass/">Planning Law Masterclass 2026</a>
  <a href="/events/2026/planning-law-masterclass/">Planning Law Masterclass 2026</a>
  <a href="/events/2026/net-zero-conference/">Net Zero and Planning Conference</a>
  <a href="/events/short/">x</a>
</main>
</body></html>`

const rtpiEventHTML = `<html><body><main>
<h1>Planning Law Masterclass 2026</h1>
<p>Join this CPD masterclass online. From £145.00 (free for students).</p>
<p>Takes place on 12 November 2026.</p>
</main></body></html>`

func rtpiServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rtpiListingHTML)
	})
	mux.HandleFunc("/events/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rtpiEventHTML)
	})
	return httptest.NewServer(mux)
}

func TestRTPI_FetchWindowScrapesListingAndDetails(t *testing.T) {
	srv := rtpiServer(t)
	defer srv.Close()

	client := session.New(session.Options{MaxRetries: 1})
	src := NewRTPI(srv.URL, 10, client)

	records, err := src.FetchWindow(context.Background(), pager.Window{})
	require.NoError(t, err)
	// Two qualifying links after dedup; the nav link and the short-text link
	// are skipped.
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Planning Law Masterclass 2026", first["title"])
	assert.Equal(t, "£145.00", first["price"])
	assert.Equal(t, "Online", first["region"])
	assert.Equal(t, "CPD Masterclass", first["category"])
	assert.Equal(t, "12 November 2026", first["date"])
	assert.Equal(t, first["id"], first["url"])
}

func TestRTPI_MaxEventsCapsDetailFetches(t *testing.T) {
	srv := rtpiServer(t)
	defer srv.Close()

	client := session.New(session.Options{MaxRetries: 1})
	src := NewRTPI(srv.URL, 1, client)

	records, err := src.FetchWindow(context.Background(), pager.Window{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRTPI_Normalize(t *testing.T) {
	client := session.New(session.Options{})
	src := NewRTPI("https://www.rtpi.org.uk", 10, client)

	row, err := src.Normalize(context.Background(), map[string]any{
		"id":    "https://www.rtpi.org.uk/events/2026/x/",
		"title": "X",
		"price": "Free",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://www.rtpi.org.uk/events/2026/x/", row.ID())
	assert.Equal(t, "Free", row["price"])
}

func TestRTPI_NormalizeRejectsMissingID(t *testing.T) {
	client := session.New(session.Options{})
	src := NewRTPI("", 10, client)
	_, err := src.Normalize(context.Background(), map[string]any{"title": "X"})
	require.Error(t, err)
}
