package normalize

import "strings"

// Status classification buckets.
const (
	StatusApproved = "Approved"
	StatusRefused  = "Refused"
	StatusPending  = "Pending"
)

// Keyword sets for decision and application-state text. Decision keywords
// take precedence over state keywords.
var (
	approvedKeywords = []string{"granted", "approved", "permit", "consented", "allowed"}
	refusedKeywords  = []string{"refused", "dismissed", "rejected", "declined"}
	pendingKeywords  = []string{"pending", "registered", "consideration", "awaiting", "valid", "in progress"}
)

// ClassifyStatus buckets a planning application into Approved, Refused, or
// Pending by keyword match against the decision and application-state text.
// With no clear signal the result is Pending, read as "decision not yet
// known" rather than a true default.
func ClassifyStatus(decision, appState string) string {
	d := strings.ToLower(strings.TrimSpace(decision))
	s := strings.ToLower(strings.TrimSpace(appState))

	if containsAny(d, approvedKeywords) {
		return StatusApproved
	}
	if containsAny(d, refusedKeywords) {
		return StatusRefused
	}
	if containsAny(s, pendingKeywords) {
		return StatusPending
	}
	return StatusPending
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
