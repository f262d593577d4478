package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/session"
)

func TestPeeringDB_Names(t *testing.T) {
	client := session.New(session.Options{})
	assert.Equal(t, "peeringdb_ix_gb", NewPeeringDB(PeeringIX, "", "GB", client).Name())
	assert.Equal(t, "peeringdb_fac_gb", NewPeeringDB(PeeringFacility, "", "GB", client).Name())
}

func TestPeeringDB_FetchWindow(t *testing.T) {
	var path, country string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		country = r.URL.Query().Get("country__in")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": 26.0, "name": "LINX LON1", "city": "London", "country": "GB", "net_count": 702.0},
			},
		})
	}))
	defer srv.Close()

	client := session.New(session.Options{MaxRetries: 1})
	src := NewPeeringDB(PeeringIX, srv.URL, "GB", client)

	records, err := src.FetchWindow(context.Background(), pager.Window{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/ix", path)
	assert.Equal(t, "GB", country)
}

func TestPeeringDB_NormalizeIX(t *testing.T) {
	client := session.New(session.Options{})
	src := NewPeeringDB(PeeringIX, "", "GB", client)

	row, err := src.Normalize(context.Background(), map[string]any{
		"id": 26.0, "name": "LINX LON1", "city": "London", "country": "GB", "net_count": 702.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "26", row.ID())
	assert.Equal(t, "LINX LON1", row["name"])
	assert.Equal(t, "702", row["networks"])
}

func TestPeeringDB_NormalizeFacility(t *testing.T) {
	client := session.New(session.Options{})
	src := NewPeeringDB(PeeringFacility, "", "GB", client)

	row, err := src.Normalize(context.Background(), map[string]any{
		"id": 100.0, "name": "Telehouse North", "address1": "Coriander Ave", "city": "London",
		"country": "GB", "zipcode": "E14 2AA",
	})
	require.NoError(t, err)
	assert.Equal(t, "100", row.ID())
	assert.Equal(t, "Coriander Ave", row["address"])
	assert.Equal(t, "E14 2AA", row["postal_code"])
}

func TestPeeringDB_NormalizeRejectsMissingID(t *testing.T) {
	client := session.New(session.Options{})
	src := NewPeeringDB(PeeringIX, "", "GB", client)
	_, err := src.Normalize(context.Background(), map[string]any{"name": "nameless"})
	require.Error(t, err)
}

func TestPeeringDB_RateLimitSurfacesTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := session.New(session.Options{MaxRetries: 1})
	src := NewPeeringDB(PeeringIX, srv.URL, "GB", client)

	_, err := src.FetchWindow(context.Background(), pager.Window{})
	var rle *pager.RateLimitError
	require.ErrorAs(t, err, &rle)
}
