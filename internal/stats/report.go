package stats

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/resale-enrich/internal/locache"
	"github.com/sells-group/resale-enrich/internal/proximity"
)

// Failure describes one address that could not be resolved.
type Failure struct {
	Key    string `json:"key" yaml:"key"`
	Reason string `json:"reason" yaml:"reason"`
	Class  string `json:"class,omitempty" yaml:"class,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failure reasons.
const (
	ReasonNotFound     = "not_found"
	ReasonServiceError = "service_error"
)

// Calls compares provider calls against the naive baseline of one geocode
// and one station lookup per transaction.
type Calls struct {
	Made               int     `json:"made" yaml:"made"`
	Estimated          int     `json:"estimated" yaml:"estimated"`
	SavedByCoordinates int     `json:"saved_by_coordinates" yaml:"saved_by_coordinates"`
	NaiveBaseline      int     `json:"naive_baseline" yaml:"naive_baseline"`
	Avoided            int     `json:"avoided" yaml:"avoided"`
	ReductionPct       float64 `json:"reduction_pct" yaml:"reduction_pct"`
}

// Coverage describes the final records.
type Coverage struct {
	TotalRecords int     `json:"total_records" yaml:"total_records"`
	Unresolved   int     `json:"unresolved" yaml:"unresolved"`
	HasStation   int     `json:"has_station" yaml:"has_station"`
	CoveragePct  float64 `json:"coverage_pct" yaml:"coverage_pct"`
	Within2Km    int     `json:"within_2km" yaml:"within_2km"`
	Between2And5 int     `json:"between_2_5km" yaml:"between_2_5km"`
	NoStation    int     `json:"no_station_within_5km" yaml:"no_station_within_5km"`
	NoStationPct float64 `json:"no_station_pct" yaml:"no_station_pct"`
}

// Distance summarizes station distances over records that have one.
type Distance struct {
	Count  int     `json:"count" yaml:"count"`
	Median float64 `json:"median_km" yaml:"median_km"`
	Mean   float64 `json:"mean_km" yaml:"mean_km"`
	Min    float64 `json:"min_km" yaml:"min_km"`
	Max    float64 `json:"max_km" yaml:"max_km"`
}

// Report is the summary of one run.
type Report struct {
	RunID      string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`

	Counters Counters  `json:"counters" yaml:"counters"`
	Calls    Calls     `json:"calls" yaml:"calls"`
	Coverage Coverage  `json:"coverage" yaml:"coverage"`
	Distance *Distance `json:"distance,omitempty" yaml:"distance,omitempty"`
	Failures []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Summarize builds a report from the run counters and the location joined
// onto each record (nil when the record's address failed). Stations found
// within firstTierKm count as the inner band, the rest as the outer band;
// a non-positive firstTierKm means proximity.Tier1RadiusKm.
func Summarize(c Counters, locations []*locache.Entry, failures []Failure, firstTierKm float64) Report {
	if firstTierKm <= 0 {
		firstTierKm = proximity.Tier1RadiusKm
	}
	r := Report{
		Counters: c,
		Calls:    summarizeCalls(c),
		Failures: failures,
	}

	cov := Coverage{TotalRecords: len(locations)}
	var dists []float64
	for _, loc := range locations {
		if loc == nil {
			cov.Unresolved++
			cov.NoStation++
			continue
		}
		if !loc.HasStation() {
			cov.NoStation++
			continue
		}
		cov.HasStation++
		dists = append(dists, *loc.DistMRTKm)
		if *loc.SearchRadiusKm <= firstTierKm {
			cov.Within2Km++
		} else {
			cov.Between2And5++
		}
	}
	cov.CoveragePct = pct(cov.HasStation, cov.TotalRecords)
	cov.NoStationPct = pct(cov.NoStation, cov.TotalRecords)
	r.Coverage = cov
	r.Distance = summarizeDistance(dists)
	return r
}

func summarizeCalls(c Counters) Calls {
	calls := Calls{
		Made:               c.CallsMade,
		Estimated:          c.HasCoords + 2*c.NeedGeocode,
		SavedByCoordinates: c.HasCoords,
		NaiveBaseline:      2 * c.Records,
	}
	calls.Avoided = calls.NaiveBaseline - calls.Made
	if calls.Avoided < 0 {
		calls.Avoided = 0
	}
	calls.ReductionPct = pct(calls.Avoided, calls.NaiveBaseline)
	return calls
}

func summarizeDistance(d []float64) *Distance {
	if len(d) == 0 {
		return nil
	}
	sorted := append([]float64(nil), d...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return &Distance{
		Count:  n,
		Median: round3(median),
		Mean:   round3(sum / float64(n)),
		Min:    sorted[0],
		Max:    sorted[n-1],
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
