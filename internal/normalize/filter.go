package normalize

import (
	"strconv"
	"strings"

	"github.com/gridwatch/collector-cli/internal/model"
)

// Filter drops rows after normalization. Zero-value fields disable the
// corresponding check, so an empty Filter keeps everything.
type Filter struct {
	// TypeAllowlist keeps only rows whose app_type matches one of these
	// values, case-insensitively. Unlike the size filter, a row with an
	// empty app_type is dropped when the allowlist is active.
	TypeAllowlist []string
	// SizeAllowlist keeps rows whose app_size matches, case-insensitively.
	// Rows with no app_size at all are kept; only a conflicting value drops.
	SizeAllowlist []string
	// MinSiteAreaHa drops rows whose parsed site area falls below the
	// threshold. Rows without a site area are kept.
	MinSiteAreaHa float64
}

// Keep reports whether the row passes every active filter.
func (f Filter) Keep(row model.Row) bool {
	if len(f.SizeAllowlist) > 0 {
		size := strings.ToLower(strings.TrimSpace(row["app_size"]))
		if size != "" && !inList(size, f.SizeAllowlist) {
			return false
		}
	}

	if len(f.TypeAllowlist) > 0 {
		appType := strings.ToLower(strings.TrimSpace(row["app_type"]))
		if !inList(appType, f.TypeAllowlist) {
			return false
		}
	}

	if f.MinSiteAreaHa > 0 {
		if raw, ok := row["site_area_ha"]; ok && raw != "" {
			if ha, err := strconv.ParseFloat(raw, 64); err == nil && ha < f.MinSiteAreaHa {
				return false
			}
		}
	}

	return true
}

func inList(v string, list []string) bool {
	for _, item := range list {
		if v == strings.ToLower(item) {
			return true
		}
	}
	return false
}
