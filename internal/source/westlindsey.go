package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/session"
)

// WestLindseyKind selects which portal endpoint a source reads.
type WestLindseyKind string

const (
	// WestLindseyPlanning fetches one planning application record.
	WestLindseyPlanning WestLindseyKind = "planning"
	// WestLindseyConsultations fetches the consultation comments attached
	// to one application.
	WestLindseyConsultations WestLindseyKind = "consultations"
)

// WestLindseySource collects records from the West Lindsey public planning
// portal. Each run targets a single configured application; the portal has no
// search or listing endpoint.
type WestLindseySource struct {
	kind          WestLindseyKind
	baseURL       string
	applicationID int
	client        *session.Client
}

// NewWestLindsey creates a West Lindsey portal source.
func NewWestLindsey(kind WestLindseyKind, baseURL string, applicationID int, client *session.Client) *WestLindseySource {
	return &WestLindseySource{
		kind:          kind,
		baseURL:       baseURL,
		applicationID: applicationID,
		client:        client,
	}
}

func (s *WestLindseySource) Name() string {
	return "west_lindsey_" + string(s.kind)
}

func (s *WestLindseySource) Collection() string    { return s.Name() }
func (s *WestLindseySource) Policy() dedupe.Policy { return dedupe.IncomingWins }

// Windows returns a single zero window: the portal serves point lookups, not
// date searches.
func (s *WestLindseySource) Windows(time.Time) []pager.Window {
	return []pager.Window{{}}
}

// FetchWindow fetches the configured application or its consultation list.
func (s *WestLindseySource) FetchWindow(ctx context.Context, _ pager.Window) ([]map[string]any, error) {
	if s.applicationID <= 0 {
		return nil, eris.New("west lindsey: no application id configured")
	}

	var path string
	switch s.kind {
	case WestLindseyPlanning:
		path = fmt.Sprintf("%s/planningApplications/%d", s.baseURL, s.applicationID)
	case WestLindseyConsultations:
		path = fmt.Sprintf("%s/consultations/%d", s.baseURL, s.applicationID)
	default:
		return nil, eris.Errorf("west lindsey: unknown kind %q", s.kind)
	}

	status, header, body, err := s.client.GetJSON(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "west lindsey: fetch %s", s.kind)
	}
	if status == http.StatusNotFound {
		// The portal 404s for withdrawn or purged applications.
		return nil, nil
	}
	if status == http.StatusTooManyRequests {
		return nil, &pager.RateLimitError{RetryAfter: session.RetryAfter(header, time.Minute)}
	}
	if status != http.StatusOK {
		return nil, &pager.APIError{Status: status, Message: fmt.Sprintf("west lindsey %s endpoint", s.kind)}
	}

	// The planning endpoint returns one object, the consultations endpoint a
	// list. Normalize both to a record slice.
	var one map[string]any
	if err := json.Unmarshal(body, &one); err == nil {
		if comments, ok := one["comments"].([]any); ok {
			return anySliceToRecords(comments), nil
		}
		return []map[string]any{one}, nil
	}
	var many []map[string]any
	if err := json.Unmarshal(body, &many); err != nil {
		return nil, eris.Wrapf(err, "west lindsey: decode %s response", s.kind)
	}
	return many, nil
}

// Normalize flattens one portal record into a row.
func (s *WestLindseySource) Normalize(_ context.Context, raw map[string]any) (model.Row, error) {
	id := stringField(raw, "id")
	if id == "" {
		return nil, eris.New("west lindsey: record has no id")
	}

	if s.kind == WestLindseyConsultations {
		row := model.Row{
			model.IDField:        id,
			"application_id":     stringField(raw, "paId"),
			"created_time":       stringField(raw, "createdTime"),
			"last_modified":      stringField(raw, "lastModifiedTime"),
			"opinion":            stringField(raw, "opinion"),
			"response_published": stringField(raw, "responsePublished"),
			"response_details":   stringField(raw, "responseDetailsToPublish"),
		}
		if consultee, ok := raw["consulteeId_relatedRecord"].(map[string]any); ok {
			row["consultee_name"] = stringField(consultee, "name")
			row["consultee_email"] = stringField(consultee, "email_1")
			row["consultee_address"] = flattenLines(stringField(consultee, "address"))
		}
		return row, nil
	}

	return model.Row{
		model.IDField:    id,
		"reference":      stringField(raw, "name"),
		"location":       flattenLines(stringField(raw, "location")),
		"ward":           stringField(raw, "ward"),
		"parish":         stringField(raw, "parish"),
		"decision":       stringField(raw, "decision"),
		"received_date":  stringField(raw, "receivedDate"),
		"valid_date":     stringField(raw, "validDate"),
		"decision_date":  stringField(raw, "decisionDate"),
		"committee_date": stringField(raw, "committeeDate"),
		"uprn":           stringField(raw, "uprn"),
	}, nil
}

// Filter keeps every normalized record.
func (s *WestLindseySource) Filter(model.Row) bool { return true }

func anySliceToRecords(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// flattenLines joins multi-line portal addresses into one comma-separated
// line so they survive CSV round-trips.
func flattenLines(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, ", ")
}
