package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

// SiteAreaHa extracts a site area in hectares from an authority's free-form
// "other fields" map. Keys are scanned first for names combining "area" or
// "site" with a hectare marker; if that finds nothing, values mentioning
// hectares are scanned instead. Negative parses are rejected.
func SiteAreaHa(other map[string]any) (float64, bool) {
	if other == nil {
		return 0, false
	}

	for key, raw := range other {
		lk := strings.ToLower(key)
		if (strings.Contains(lk, "area") || strings.Contains(lk, "site")) &&
			(strings.Contains(lk, "ha") || strings.Contains(lk, "hectare")) {
			if v, ok := parseAreaText(stringify(raw)); ok {
				return v, true
			}
		}
	}

	for _, raw := range other {
		text := strings.ToLower(stringify(raw))
		if strings.Contains(text, "ha") || strings.Contains(text, "hectare") {
			if v, ok := parseAreaText(text); ok {
				return v, true
			}
		}
	}

	return 0, false
}

// parseAreaText parses a float out of free text: direct parse after
// stripping thousands separators, then the first decimal-or-integer number
// found anywhere in the text.
func parseAreaText(text string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
		if v < 0 {
			return 0, false
		}
		return v, true
	}

	m := numberPattern.FindString(cleaned)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
