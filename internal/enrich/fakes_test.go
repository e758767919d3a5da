package enrich

import (
	"context"
	"sync"

	"github.com/sells-group/resale-enrich/internal/proximity"
	"github.com/sells-group/resale-enrich/pkg/onemap"
)

type geocodeReply struct {
	result *onemap.GeocodeResult
	err    error
}

// fakeGeocoder answers from a map keyed by query; unknown queries match at
// a fixed point.
type fakeGeocoder struct {
	mu      sync.Mutex
	replies map[string]geocodeReply
	queries []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, query string) (*onemap.GeocodeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if r, ok := f.replies[query]; ok {
		return r.result, r.err
	}
	return &onemap.GeocodeResult{Latitude: 1.35, Longitude: 103.85, Matched: true}, nil
}

func (f *fakeGeocoder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type point struct{ lat, lon float64 }

// fakeStations returns a fixed result and records the points it was asked about.
type fakeStations struct {
	mu     sync.Mutex
	result proximity.Result
	points []point
}

func (f *fakeStations) FindNearest(_ context.Context, lat, lon float64) (proximity.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point{lat, lon})
	return f.result, nil
}

func (f *fakeStations) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

func nearStation() proximity.Result {
	return proximity.Result{Station: "BISHAN MRT STATION", DistanceKm: 0.42, RadiusKm: 2.0, Tier: 1, Found: true, Calls: 1}
}

// panicking fails the run if any network collaborator is used.
type panicking struct{}

func (panicking) Geocode(context.Context, string) (*onemap.GeocodeResult, error) {
	panic("unexpected geocode call")
}

func (panicking) FindNearest(context.Context, float64, float64) (proximity.Result, error) {
	panic("unexpected station call")
}

// tieredStations reports a configurable innermost radius.
type tieredStations struct {
	*fakeStations
	first float64
}

func (t tieredStations) FirstTierKm() float64 { return t.first }
