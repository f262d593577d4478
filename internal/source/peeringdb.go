package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/session"
)

// PeeringDBKind selects which PeeringDB object type a source collects.
type PeeringDBKind string

const (
	// PeeringIX collects internet exchanges.
	PeeringIX PeeringDBKind = "ix"
	// PeeringFacility collects colocation facilities.
	PeeringFacility PeeringDBKind = "fac"
)

// PeeringDBSource collects internet-exchange or facility records for one
// country from the PeeringDB API. The endpoints return the full filtered set
// in one response, so the source is single-shot rather than windowed.
type PeeringDBSource struct {
	kind    PeeringDBKind
	baseURL string
	country string
	client  *session.Client
}

// NewPeeringDB creates a PeeringDB source for one object kind.
func NewPeeringDB(kind PeeringDBKind, baseURL, country string, client *session.Client) *PeeringDBSource {
	return &PeeringDBSource{
		kind:    kind,
		baseURL: baseURL,
		country: country,
		client:  client,
	}
}

func (s *PeeringDBSource) Name() string {
	return fmt.Sprintf("peeringdb_%s_%s", s.kind, normalizeCountry(s.country))
}

func (s *PeeringDBSource) Collection() string    { return s.Name() }
func (s *PeeringDBSource) Policy() dedupe.Policy { return dedupe.IncomingWins }

// Windows returns a single zero window: the endpoint is not date-filtered.
func (s *PeeringDBSource) Windows(time.Time) []pager.Window {
	return []pager.Window{{}}
}

// FetchWindow fetches the complete country-filtered object list.
func (s *PeeringDBSource) FetchWindow(ctx context.Context, _ pager.Window) ([]map[string]any, error) {
	params := url.Values{"country__in": {s.country}}
	reqURL := fmt.Sprintf("%s/%s?%s", s.baseURL, s.kind, params.Encode())

	status, header, body, err := s.client.GetJSON(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrapf(err, "peeringdb: fetch %s", s.kind)
	}
	if status == http.StatusTooManyRequests {
		return nil, &pager.RateLimitError{RetryAfter: session.RetryAfter(header, time.Minute)}
	}
	if status != http.StatusOK {
		return nil, &pager.APIError{Status: status, Message: fmt.Sprintf("peeringdb %s endpoint", s.kind)}
	}

	var payload struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrapf(err, "peeringdb: decode %s response", s.kind)
	}
	return payload.Data, nil
}

// Normalize projects the handful of fields the dashboard cares about.
func (s *PeeringDBSource) Normalize(_ context.Context, raw map[string]any) (model.Row, error) {
	id := stringField(raw, "id")
	if id == "" {
		return nil, eris.New("peeringdb: record has no id")
	}

	row := model.Row{
		model.IDField: id,
		"name":        stringField(raw, "name"),
		"city":        stringField(raw, "city"),
		"country":     stringField(raw, "country"),
	}
	switch s.kind {
	case PeeringIX:
		row["networks"] = stringField(raw, "net_count")
	case PeeringFacility:
		row["address"] = stringField(raw, "address1")
		row["postal_code"] = stringField(raw, "zipcode")
	}
	return row, nil
}

// Filter keeps every normalized record.
func (s *PeeringDBSource) Filter(model.Row) bool { return true }

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func normalizeCountry(c string) string {
	return strings.ToLower(c)
}
