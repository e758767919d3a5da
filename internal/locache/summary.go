package locache

import (
	"sort"

	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/proximity"
)

// Summary describes the contents of a cache.
type Summary struct {
	Entries      int `json:"entries" yaml:"entries"`
	WithStation  int `json:"with_station" yaml:"with_station"`
	Within2Km    int `json:"within_2km" yaml:"within_2km"`
	Between2And5 int `json:"between_2_5km" yaml:"between_2_5km"`
	NoStation    int `json:"no_station" yaml:"no_station"`
	NonCanonical int `json:"non_canonical_keys" yaml:"non_canonical_keys"`
}

// Summarize counts entries by station tier.
func Summarize(entries Entries) Summary {
	s := Summary{Entries: len(entries)}
	for k, e := range entries {
		if !k.Canonical() {
			s.NonCanonical++
		}
		if !e.HasStation() {
			s.NoStation++
			continue
		}
		s.WithStation++
		if *e.SearchRadiusKm <= proximity.Tier1RadiusKm {
			s.Within2Km++
		} else {
			s.Between2And5++
		}
	}
	return s
}

// Prune removes entries whose key is not in canonical form and returns the
// removed keys in sorted order. When no canonical twin exists the entry is
// re-keyed instead of dropped; among several legacy keys that normalize to
// the same canonical key, the lowest one wins.
func Prune(entries Entries) (Entries, []address.Key) {
	out := make(Entries, len(entries))
	var removed []address.Key
	for k, e := range entries {
		if k.Canonical() {
			out[k] = e
			continue
		}
		removed = append(removed, k)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	for _, k := range removed {
		canon := address.Key(address.NormalizeStreet(k.String()))
		if canon.IsZero() {
			continue
		}
		if _, ok := out[canon]; !ok {
			out[canon] = entries[k]
		}
	}
	return out, removed
}
