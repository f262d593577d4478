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

func TestWestLindsey_FetchApplication(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"id": 4021.0, "name": "146496", "ward": "Scotter",
		})
	}))
	defer srv.Close()

	client := session.New(session.Options{MaxRetries: 1})
	src := NewWestLindsey(WestLindseyPlanning, srv.URL, 4021, client)

	records, err := src.FetchWindow(context.Background(), pager.Window{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/planningApplications/4021", path)
}

func TestWestLindsey_FetchConsultationsUnwrapsComments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"comments": []map[string]any{
				{"id": 1.0, "opinion": "Object"},
				{"id": 2.0, "opinion": "Support"},
			},
		})
	}))
	defer srv.Close()

	client := session.New(session.Options{MaxRetries: 1})
	src := NewWestLindsey(WestLindseyConsultations, srv.URL, 4021, client)

	records, err := src.FetchWindow(context.Background(), pager.Window{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestWestLindsey_NotFoundIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := session.New(session.Options{MaxRetries: 1})
	src := NewWestLindsey(WestLindseyPlanning, srv.URL, 9999, client)

	records, err := src.FetchWindow(context.Background(), pager.Window{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWestLindsey_MissingApplicationIDErrors(t *testing.T) {
	client := session.New(session.Options{})
	src := NewWestLindsey(WestLindseyPlanning, "http://example.invalid", 0, client)
	_, err := src.FetchWindow(context.Background(), pager.Window{})
	require.Error(t, err)
}

func TestWestLindsey_NormalizeApplication(t *testing.T) {
	client := session.New(session.Options{})
	src := NewWestLindsey(WestLindseyPlanning, "", 4021, client)

	row, err := src.Normalize(context.Background(), map[string]any{
		"id":           4021.0,
		"name":         "146496",
		"location":     "Land off\nGainsborough Road\nScotter",
		"ward":         "Scotter",
		"decision":     "Approve",
		"receivedDate": "2026-03-01",
		"uprn":         10001234.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "4021", row.ID())
	assert.Equal(t, "146496", row["reference"])
	assert.Equal(t, "Land off, Gainsborough Road, Scotter", row["location"])
	assert.Equal(t, "2026-03-01", row["received_date"])
	assert.Equal(t, "10001234", row["uprn"])
}

func TestWestLindsey_NormalizeConsultation(t *testing.T) {
	client := session.New(session.Options{})
	src := NewWestLindsey(WestLindseyConsultations, "", 4021, client)

	row, err := src.Normalize(context.Background(), map[string]any{
		"id":      17.0,
		"paId":    4021.0,
		"opinion": "Object",
		"consulteeId_relatedRecord": map[string]any{
			"name":    "Parish Council",
			"email_1": "clerk@example.org",
			"address": "The Hall\nMain St",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "17", row.ID())
	assert.Equal(t, "4021", row["application_id"])
	assert.Equal(t, "Parish Council", row["consultee_name"])
	assert.Equal(t, "The Hall, Main St", row["consultee_address"])
}
