package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/dedupe"
	"github.com/gridwatch/collector-cli/internal/model"
	"github.com/gridwatch/collector-cli/internal/pager"
	"github.com/gridwatch/collector-cli/internal/session"
)

// RTPISource collects professional planning events from the RTPI website by
// scraping the events listing and each linked event page. Price, region,
// category, and date are heuristic extractions from the page text, since the
// site carries no structured markup for them.
type RTPISource struct {
	baseURL   string
	maxEvents int
	client    *session.Client
}

// NewRTPI creates an RTPI events source.
func NewRTPI(baseURL string, maxEvents int, client *session.Client) *RTPISource {
	if maxEvents <= 0 {
		maxEvents = 40
	}
	return &RTPISource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxEvents: maxEvents,
		client:    client,
	}
}

func (s *RTPISource) Name() string          { return "rtpi_events" }
func (s *RTPISource) Collection() string    { return s.Name() }
func (s *RTPISource) Policy() dedupe.Policy { return dedupe.IncomingWins }

// Windows returns a single zero window: the listing is not date-filtered.
func (s *RTPISource) Windows(time.Time) []pager.Window {
	return []pager.Window{{}}
}

// FetchWindow scrapes the listing page for event links, then visits each
// event page for details. Events gathered before a failure are returned
// alongside the error.
func (s *RTPISource) FetchWindow(ctx context.Context, _ pager.Window) ([]map[string]any, error) {
	links, err := s.eventLinks(ctx)
	if err != nil {
		return nil, err
	}
	if len(links) > s.maxEvents {
		links = links[:s.maxEvents]
	}

	var records []map[string]any
	for _, link := range links {
		rec, err := s.eventDetails(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return records, err
			}
			// One broken event page should not sink the whole run.
			zap.L().Warn("skipping event page", zap.String("url", link), zap.Error(err))
			continue
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// eventLinks scrapes the listing page and returns deduplicated event URLs in
// page order.
func (s *RTPISource) eventLinks(ctx context.Context) ([]string, error) {
	doc, err := s.fetchDoc(ctx, s.baseURL+"/events")
	if err != nil {
		return nil, eris.Wrap(err, "rtpi: fetch events listing")
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		text := strings.TrimSpace(sel.Text())

		// An event link has a slug under /events/ and substantial link text;
		// navigation links to the listing itself do not.
		if !strings.HasPrefix(href, "/events/") || href == "/events/" {
			return
		}
		if strings.Count(href, "/") < 3 || len(text) <= 10 {
			return
		}

		full := s.baseURL + href
		if u, err := url.Parse(href); err == nil && u.IsAbs() {
			full = href
		}
		if !seen[full] {
			seen[full] = true
			links = append(links, full)
		}
	})
	return links, nil
}

var (
	pricePattern = regexp.MustCompile(`(?i)(?:from\s*)?£(\d[\d,]*(?:\.\d{2})?)`)
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d{1,2}\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4})\b`),
		regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{2,4})\b`),
		regexp.MustCompile(`(?i)\b((?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`),
	}
	categoryKeywords = []struct{ keyword, label string }{
		{"masterclass", "CPD Masterclass"},
		{"workshop", "Workshop"},
		{"conference", "Conference"},
		{"seminar", "Seminar"},
		{"training", "Training"},
		{"event", "Event"},
	}
)

// eventDetails scrapes one event page.
func (s *RTPISource) eventDetails(ctx context.Context, eventURL string) (map[string]any, error) {
	doc, err := s.fetchDoc(ctx, eventURL)
	if err != nil {
		return nil, err
	}

	main := doc.Find("main").First()
	if main.Length() == 0 {
		return nil, nil
	}

	title := strings.TrimSpace(main.Find("h1, h2").First().Text())
	if title == "" {
		return nil, nil
	}

	text := main.Text()
	lower := strings.ToLower(text)

	price := ""
	if m := pricePattern.FindStringSubmatch(text); m != nil {
		price = "£" + m[1]
	} else if strings.Contains(lower, "free") {
		price = "Free"
	}

	region := ""
	switch {
	case strings.Contains(lower, "national"):
		region = "National"
	case strings.Contains(lower, "online"):
		region = "Online"
	case strings.Contains(lower, "virtual"):
		region = "Virtual"
	}

	category := ""
	for _, c := range categoryKeywords {
		if strings.Contains(lower, c.keyword) {
			category = c.label
			break
		}
	}

	date := ""
	for _, p := range datePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			date = m[1]
			break
		}
	}
	if date == "" {
		date = "See event page for dates"
	}

	return map[string]any{
		"id":       eventURL,
		"title":    title,
		"date":     date,
		"region":   region,
		"category": category,
		"price":    price,
		"url":      eventURL,
	}, nil
}

func (s *RTPISource) fetchDoc(ctx context.Context, rawURL string) (*goquery.Document, error) {
	status, header, body, err := s.client.GetJSON(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		return nil, &pager.RateLimitError{RetryAfter: session.RetryAfter(header, time.Minute)}
	}
	if status != http.StatusOK {
		return nil, &pager.APIError{Status: status, Message: fmt.Sprintf("http %d from %s", status, rawURL)}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "rtpi: parse %s", rawURL)
	}
	return doc, nil
}

// Normalize stringifies the already-flat event record.
func (s *RTPISource) Normalize(_ context.Context, raw map[string]any) (model.Row, error) {
	id := stringField(raw, "id")
	if id == "" {
		return nil, eris.New("rtpi: event has no id")
	}
	row := make(model.Row, len(raw))
	for k := range raw {
		row[k] = stringField(raw, k)
	}
	return row, nil
}

// Filter keeps every event.
func (s *RTPISource) Filter(model.Row) bool { return true }
