// Package dedupe combines previously persisted rows with a freshly fetched
// batch, keyed by identifier, under an explicit named merge policy.
package dedupe

import (
	"github.com/rotisserie/eris"

	"github.com/gridwatch/collector-cli/internal/model"
)

// Policy names the behavior when an incoming row's identifier already exists
// in the persisted collection. The upstream fetch windows are partial and
// rolling, so existing rows are never dropped either way.
type Policy int

const (
	// ExistingWins keeps the persisted row untouched and ignores the
	// incoming duplicate. This is the default.
	ExistingWins Policy = iota
	// IncomingWins replaces a matched persisted row with the incoming one,
	// treating the fresh fetch as authoritative.
	IncomingWins
)

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "existing_wins":
		return ExistingWins, nil
	case "incoming_wins":
		return IncomingWins, nil
	default:
		return 0, eris.Errorf("dedupe: unknown merge policy %q (valid: existing_wins, incoming_wins)", s)
	}
}

func (p Policy) String() string {
	switch p {
	case ExistingWins:
		return "existing_wins"
	case IncomingWins:
		return "incoming_wins"
	default:
		return "unknown"
	}
}

// Summary reports merge outcomes for operator visibility.
type Summary struct {
	Existing       int
	Added          int
	Updated        int
	Total          int
	NewByStatus    map[string]int
	NewByAuthority map[string]int
}

// Merge combines the persisted collection with an incoming batch. Existing
// rows keep their original order; genuinely new rows append in batch order.
// Rows without an identifier are dropped. The same batch merged twice yields
// the same result as merging it once.
func Merge(existing, incoming []model.Row, policy Policy) ([]model.Row, Summary) {
	summary := Summary{
		NewByStatus:    make(map[string]int),
		NewByAuthority: make(map[string]int),
	}

	out := make([]model.Row, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing))

	for _, row := range existing {
		id := row.ID()
		if id == "" {
			continue
		}
		if _, dup := index[id]; dup {
			// A persisted collection should never carry duplicates, but a
			// hand-edited CSV might. Keep the first occurrence.
			continue
		}
		index[id] = len(out)
		out = append(out, row)
	}
	summary.Existing = len(out)

	for _, row := range incoming {
		id := row.ID()
		if id == "" {
			continue
		}
		if at, dup := index[id]; dup {
			if policy == IncomingWins {
				out[at] = row
				summary.Updated++
			}
			continue
		}
		index[id] = len(out)
		out = append(out, row)
		summary.Added++
		summary.NewByStatus[statusOf(row)]++
		if auth := row["authority"]; auth != "" {
			summary.NewByAuthority[auth]++
		}
	}

	summary.Total = len(out)
	return out, summary
}

func statusOf(row model.Row) string {
	if s := row["status_class"]; s != "" {
		return s
	}
	return "Unclassified"
}
