package source

import (
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/config"
	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/geocode"
	"github.com/gridwatch/collector-cli/internal/normalize"
	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/session"
)

// BuildOptions adjusts registry construction per invocation.
type BuildOptions struct {
	// Policy applies to the paginated sources. Rolling refreshes wait out a
	// 429; historical back-fills abort and persist what they have.
	Policy pager.RateLimitPolicy
	// MonthsBack overrides the configured window count when positive.
	MonthsBack int
}

// Build constructs a fresh registry of all configured sources. Registries are
// single-run values: the geocode cache and HTTP session they share live for
// one run only.
func Build(cfg *config.Config, opts BuildOptions) *Registry {
	client := session.New(session.Options{
		UserAgent:  cfg.Session.UserAgent,
		Referer:    cfg.Session.Referer,
		Timeout:    cfg.Session.Timeout(),
		MaxRetries: cfg.Session.MaxRetries,
		RateLimits: cfg.Session.RateLimits,
	})

	var geo *geocode.Resolver
	if cfg.Geocode.Enabled {
		geo = geocode.New(geocode.Options{
			BaseURL: cfg.Geocode.BaseURL,
			Timeout: cfg.Geocode.Timeout(),
		})
	}
	norm := normalize.New(geo)

	pg := pager.New(client, pager.Options{
		PageSize:          cfg.Pager.PageSize,
		PolitenessDelay:   cfg.Pager.PolitenessDelay(),
		DefaultRetryAfter: cfg.Pager.DefaultRetryAfter(),
		Policy:            opts.Policy,
	})

	monthsBack := cfg.PlanIt.MonthsBack
	if opts.MonthsBack > 0 {
		monthsBack = opts.MonthsBack
	}

	policy, err := dedupe.ParsePolicy(cfg.PlanIt.MergePolicy)
	if err != nil {
		zap.L().Warn("invalid merge policy, using existing_wins", zap.Error(err))
		policy = dedupe.ExistingWins
	}

	reg := NewRegistry()
	reg.Register(NewPlanIt(PlanItOptions{
		Name:       "planit_renewables",
		Search:     cfg.PlanIt.RenewablesSearch,
		BaseURL:    cfg.PlanIt.BaseURL,
		MonthsBack: monthsBack,
		Pager:      pg,
		Normalizer: norm,
		Filter:     cfg.PlanIt.Filter,
		Policy:     policy,
	}))
	reg.Register(NewPlanIt(PlanItOptions{
		Name:       "planit_datacentres",
		Search:     cfg.PlanIt.DatacentreSearch,
		BaseURL:    cfg.PlanIt.BaseURL,
		MonthsBack: monthsBack,
		Pager:      pg,
		Normalizer: norm,
		Filter:     cfg.PlanIt.Filter,
		Policy:     policy,
	}))
	reg.Register(NewPeeringDB(PeeringIX, cfg.Peering.BaseURL, cfg.Peering.Country, client))
	reg.Register(NewPeeringDB(PeeringFacility, cfg.Peering.BaseURL, cfg.Peering.Country, client))
	reg.Register(NewWestLindsey(WestLindseyPlanning, cfg.WestLin.BaseURL, cfg.WestLin.ApplicationID, client))
	reg.Register(NewWestLindsey(WestLindseyConsultations, cfg.WestLin.BaseURL, cfg.WestLin.ApplicationID, client))
	reg.Register(NewRTPI(cfg.RTPI.BaseURL, cfg.RTPI.MaxEvents, client))
	return reg
}
