// Package model defines the flat row shape shared by every collector source.
package model

import (
	"slices"
	"strings"
)

// IDField is the key every retained row must carry; it is the dedup/merge key.
const IDField = "id"

// Row is one normalized record: a flat mapping of field name to string value.
// Source payloads are heterogeneous, so anything not recognized by a
// normalizer is stringified and passed through under its original key.
type Row map[string]string

// ID returns the row identifier, empty if absent.
func (r Row) ID() string {
	return r[IDField]
}

// Get returns the first non-empty value among the given keys.
func (r Row) Get(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the row's field names in unspecified order.
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	return keys
}

// UnionKeys returns the union of field names across rows, preserving the
// order of first appearance. CSV sinks use this to build a stable header
// that covers optional fields present on only some rows.
func UnionKeys(rows []Row) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, r := range rows {
		for _, k := range orderedKeys(r) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// orderedKeys returns a row's keys with the identifier first and the rest
// sorted lexicographically, so union headers are deterministic.
func orderedKeys(r Row) []string {
	var rest []string
	hasID := false
	for k := range r {
		if k == IDField {
			hasID = true
			continue
		}
		rest = append(rest, k)
	}
	slices.Sort(rest)
	if hasID {
		return append([]string{IDField}, rest...)
	}
	return rest
}
