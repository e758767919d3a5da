// Package locache persists resolved address locations between enrichment runs.
package locache

import (
	"github.com/sells-group/resale-enrich/internal/address"
)

// Entry is the resolved location of one address. The three station fields
// are nil when no station was found within the widest search radius.
type Entry struct {
	Block          string   `json:"block"`
	StreetName     string   `json:"street_name"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	NearestMRT     *string  `json:"nearest_mrt"`
	DistMRTKm      *float64 `json:"dist_mrt_km"`
	SearchRadiusKm *float64 `json:"search_radius_km"`
}

// HasStation reports whether a station was found for the entry.
func (e Entry) HasStation() bool {
	return e.NearestMRT != nil && e.DistMRTKm != nil && e.SearchRadiusKm != nil
}

// Entries maps address keys to their resolved entry.
type Entries map[address.Key]Entry

// Clone returns a shallow copy safe to hand to another goroutine.
func (m Entries) Clone() Entries {
	out := make(Entries, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
