package model

import "time"

// RunStatus tracks the lifecycle of one driver run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	// RunStatusPartial means the run failed after persisting some rows
	// (e.g. a rate-limit abort mid back-fill).
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// FailureKind classifies why a run failed, so callers can signal each case
// distinctly instead of returning an opaque error.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureAlreadyRunning FailureKind = "already_running"
	FailureRateLimited    FailureKind = "rate_limited"
	FailureTimeout        FailureKind = "timeout"
	FailureUpstream       FailureKind = "upstream"
)

// Report summarizes one pipeline run for operator visibility.
type Report struct {
	Source  string        `json:"source"`
	Total   int           `json:"total"`
	New     int           `json:"new"`
	Elapsed time.Duration `json:"elapsed"`
	// Partial is set when the run persisted accumulated rows before failing.
	Partial        bool           `json:"partial,omitempty"`
	NewByStatus    map[string]int `json:"new_by_status,omitempty"`
	NewByAuthority map[string]int `json:"new_by_authority,omitempty"`
}
