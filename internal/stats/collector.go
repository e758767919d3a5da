// Package stats aggregates the counters of one enrichment run into a report.
package stats

import "sync"

// Counters are the raw per-run tallies.
type Counters struct {
	Records         int `json:"records" yaml:"records"`
	UniqueAddresses int `json:"unique_addresses" yaml:"unique_addresses"`
	InvalidRecords  int `json:"invalid_records" yaml:"invalid_records"`
	Cached          int `json:"cached" yaml:"cached"`
	HasCoords       int `json:"has_coords" yaml:"has_coords"`
	NeedGeocode     int `json:"need_geocode" yaml:"need_geocode"`

	Processed            int `json:"processed" yaml:"processed"`
	Resolved             int `json:"resolved" yaml:"resolved"`
	GeocodeSuccess       int `json:"geocode_success" yaml:"geocode_success"`
	GeocodeNotFound      int `json:"geocode_not_found" yaml:"geocode_not_found"`
	GeocodeServiceErrors int `json:"geocode_service_errors" yaml:"geocode_service_errors"`

	Within2Km          int `json:"mrt_2km" yaml:"mrt_2km"`
	Within5Km          int `json:"mrt_5km" yaml:"mrt_5km"`
	NoStation          int `json:"no_mrt" yaml:"no_mrt"`
	Tier1ServiceErrors int `json:"tier1_service_errors" yaml:"tier1_service_errors"`
	Tier2ServiceErrors int `json:"tier2_service_errors" yaml:"tier2_service_errors"`

	CallsMade int `json:"calls_made" yaml:"calls_made"`
}

// Failed is the number of addresses that could not be resolved.
func (c Counters) Failed() int {
	return c.GeocodeNotFound + c.GeocodeServiceErrors
}

// Collector accumulates Counters. It is safe for concurrent use.
type Collector struct {
	mu sync.Mutex
	c  Counters
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Plan records the partition of the run's addresses.
func (col *Collector) Plan(records, unique, invalid, cached, hasCoords, needGeocode int) {
	col.mu.Lock()
	defer col.mu.Unlock()
	col.c.Records = records
	col.c.UniqueAddresses = unique
	col.c.InvalidRecords = invalid
	col.c.Cached = cached
	col.c.HasCoords = hasCoords
	col.c.NeedGeocode = needGeocode
}

// Calls adds n provider calls.
func (col *Collector) Calls(n int) {
	col.mu.Lock()
	col.c.CallsMade += n
	col.mu.Unlock()
}

// GeocodeSucceeded counts a successful geocode lookup.
func (col *Collector) GeocodeSucceeded() {
	col.mu.Lock()
	col.c.GeocodeSuccess++
	col.mu.Unlock()
}

// GeocodeFailed counts an address that could not be geocoded. The address
// is processed but never resolved.
func (col *Collector) GeocodeFailed(notFound bool) int {
	col.mu.Lock()
	defer col.mu.Unlock()
	if notFound {
		col.c.GeocodeNotFound++
	} else {
		col.c.GeocodeServiceErrors++
	}
	col.c.Processed++
	return col.c.Processed
}

// Resolved counts a fully resolved address by the 1-based tier that found
// its station (0 when none was found). Any tier past the first counts as
// the outer band. failedTiers lists the tiers whose lookup errored.
func (col *Collector) Resolved(tier int, failedTiers []int) int {
	col.mu.Lock()
	defer col.mu.Unlock()
	switch {
	case tier == 1:
		col.c.Within2Km++
	case tier > 1:
		col.c.Within5Km++
	default:
		col.c.NoStation++
	}
	for _, t := range failedTiers {
		if t == 1 {
			col.c.Tier1ServiceErrors++
		} else {
			col.c.Tier2ServiceErrors++
		}
	}
	col.c.Resolved++
	col.c.Processed++
	return col.c.Processed
}

// Snapshot returns a copy of the current counters.
func (col *Collector) Snapshot() Counters {
	col.mu.Lock()
	defer col.mu.Unlock()
	return col.c
}
