package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/collector-cli/internal/config"
	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/normalize"
	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/session"
)

func TestPlanIt_WindowsCountsBackwards(t *testing.T) {
	src := NewPlanIt(PlanItOptions{Name: "planit_renewables", MonthsBack: 3})
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	windows := src.Windows(now)
	require.Len(t, windows, 3)
	assert.Equal(t, time.August, windows[0].Start.Month())
	assert.Equal(t, time.June, windows[2].Start.Month())
}

func TestPlanIt_FetchWindowQueryShape(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{"records": []map[string]any{}})
	}))
	defer srv.Close()

	client := session.New(session.Options{MaxRetries: 1})
	src := NewPlanIt(PlanItOptions{
		Name:    "planit_renewables",
		Search:  `"solar farm" or photovoltaic`,
		BaseURL: srv.URL,
		Pager:   pager.New(client, pager.Options{PageSize: 300}),
	})

	w := pager.Window{
		Start: time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, time.June, 30, 0, 0, 0, 0, time.UTC),
	}
	_, err := src.FetchWindow(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, `"solar farm" or photovoltaic`, query["search"][0])
	assert.Equal(t, "*", query["select"][0])
	assert.Equal(t, "-start_date", query["sort"][0])
	assert.Equal(t, "on", query["compress"][0])
	assert.Equal(t, "2020-06-01", query["start_date"][0])
}

func TestPlanIt_NormalizeAndFilter(t *testing.T) {
	src := NewPlanIt(PlanItOptions{
		Name:       "planit_renewables",
		Normalizer: normalize.New(nil),
		Filter: config.SourceFilter{
			TypeAllowlist: []string{"Full", "Outline"},
			SizeAllowlist: []string{"Large", "Very Large"},
			MinSiteAreaHa: 20,
		},
		Policy: dedupe.ExistingWins,
	})

	row, err := src.Normalize(context.Background(), map[string]any{
		"name":     "app/1",
		"app_type": "Full",
		"app_size": "Large",
	})
	require.NoError(t, err)
	assert.True(t, src.Filter(row))

	row, err = src.Normalize(context.Background(), map[string]any{
		"name":     "app/2",
		"app_type": "Householder",
	})
	require.NoError(t, err)
	assert.False(t, src.Filter(row))
}
