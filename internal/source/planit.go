package source

import (
	"context"
	"net/url"
	"time"

	"github.com/gridwatch/collector-cli/internal/config"
	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/normalize"
	"github.com/gridwatch/collector-cli/internal/pager"
)

// planitEndpoint is the JSON search endpoint path on the PlanIt API host.
const planitEndpoint = "/api/applics/json"

// PlanItSource collects UK planning applications from the PlanIt aggregator
// via its paginated search API. One instance per search profile (renewables,
// datacentres), differing only in search expression and registry name.
type PlanItSource struct {
	name       string
	search     string
	baseURL    string
	monthsBack int
	pager      *pager.Pager
	norm       *normalize.Normalizer
	filter     normalize.Filter
	policy     dedupe.Policy
}

// PlanItOptions configures one PlanIt search profile.
type PlanItOptions struct {
	Name       string
	Search     string
	BaseURL    string
	MonthsBack int
	Pager      *pager.Pager
	Normalizer *normalize.Normalizer
	Filter     config.SourceFilter
	Policy     dedupe.Policy
}

// NewPlanIt creates a PlanIt source.
func NewPlanIt(opts PlanItOptions) *PlanItSource {
	if opts.MonthsBack <= 0 {
		opts.MonthsBack = 3
	}
	return &PlanItSource{
		name:       opts.Name,
		search:     opts.Search,
		baseURL:    opts.BaseURL,
		monthsBack: opts.MonthsBack,
		pager:      opts.Pager,
		norm:       opts.Normalizer,
		filter: normalize.Filter{
			TypeAllowlist: opts.Filter.TypeAllowlist,
			SizeAllowlist: opts.Filter.SizeAllowlist,
			MinSiteAreaHa: opts.Filter.MinSiteAreaHa,
		},
		policy: opts.Policy,
	}
}

func (s *PlanItSource) Name() string          { return s.name }
func (s *PlanItSource) Collection() string    { return s.name }
func (s *PlanItSource) Policy() dedupe.Policy { return s.policy }

// Windows returns whole calendar months counting backwards from now. The
// current month comes first so a rate-limit abort still refreshes the most
// recent data.
func (s *PlanItSource) Windows(now time.Time) []pager.Window {
	return pager.MonthWindows(now, s.monthsBack)
}

// FetchWindow pages through the search results for one month window.
func (s *PlanItSource) FetchWindow(ctx context.Context, w pager.Window) ([]map[string]any, error) {
	q := pager.Query{
		Endpoint: s.baseURL + planitEndpoint,
		Search:   s.search,
		Extra: url.Values{
			"select":   {"*"},
			"sort":     {"-start_date"},
			"compress": {"on"},
		},
	}
	return s.pager.FetchWindow(ctx, q, w)
}

// Normalize maps one raw application record to a row.
func (s *PlanItSource) Normalize(ctx context.Context, raw map[string]any) (model.Row, error) {
	return s.norm.PlanningRecord(ctx, raw)
}

// Filter applies the application-type, size, and site-area filters.
func (s *PlanItSource) Filter(row model.Row) bool {
	return s.filter.Keep(row)
}
