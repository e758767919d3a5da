// Package proximity finds the nearest MRT station to a point, widening the
// search radius when the first pass comes back empty.
package proximity

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/resale-enrich/internal/throttle"
	"github.com/sells-group/resale-enrich/pkg/onemap"
)

// Default search radii in km, tried in order.
const (
	Tier1RadiusKm = 2.0
	Tier2RadiusKm = 5.0
)

// StationFinder lists stations within a radius of a point.
type StationFinder interface {
	NearbyStations(ctx context.Context, lat, lon float64, radiusMeters int) ([]onemap.Station, error)
}

// Result is the outcome of a tiered search. RadiusKm and Tier are zero when
// no station was found in any tier.
type Result struct {
	Station    string
	DistanceKm float64
	RadiusKm   float64
	Found      bool
	// Tier is the 1-based index of the radius that found the station.
	Tier int

	// Calls is the number of provider calls made.
	Calls int
	// TierErrors holds the service error for each tier that failed, keyed
	// by radius. Failed tiers fall through exactly like empty ones.
	TierErrors map[float64]error
	// FailedTiers lists the 1-based indexes of the tiers in TierErrors.
	FailedTiers []int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRadii overrides the search radii (km).
func WithRadii(km ...float64) Option {
	return func(e *Engine) {
		if len(km) > 0 {
			e.radii = km
		}
	}
}

// WithGap sets the throttle applied between tiers.
func WithGap(t throttle.Throttle) Option {
	return func(e *Engine) {
		if t != nil {
			e.gap = t
		}
	}
}

// Engine runs the tiered nearest-station search.
type Engine struct {
	finder StationFinder
	radii  []float64
	gap    throttle.Throttle
}

// New creates an Engine backed by finder.
func New(finder StationFinder, opts ...Option) *Engine {
	e := &Engine{
		finder: finder,
		radii:  []float64{Tier1RadiusKm, Tier2RadiusKm},
		gap:    throttle.None{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FirstTierKm is the innermost search radius.
func (e *Engine) FirstTierKm() float64 {
	return e.radii[0]
}

// FindNearest searches each radius in turn and returns the first tier with
// a station. The only error returned is context cancellation; provider
// failures are recorded on the Result.
func (e *Engine) FindNearest(ctx context.Context, lat, lon float64) (Result, error) {
	origin := NewPoint(lat, lon)
	var res Result

	for i, radius := range e.radii {
		if i > 0 {
			if err := e.gap.Wait(ctx); err != nil {
				return res, err
			}
		}

		res.Calls++
		stations, err := e.finder.NearbyStations(ctx, lat, lon, int(radius*1000))
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if res.TierErrors == nil {
				res.TierErrors = make(map[float64]error)
			}
			res.TierErrors[radius] = err
			res.FailedTiers = append(res.FailedTiers, i+1)
			zap.L().Debug("station search failed",
				zap.Float64("radius_km", radius),
				zap.Error(err),
			)
			continue
		}

		best, dist, ok := Nearest(origin, stations)
		if !ok {
			continue
		}
		res.Station = best.Name
		res.DistanceKm = dist
		res.RadiusKm = radius
		res.Tier = i + 1
		res.Found = true
		return res, nil
	}

	return res, nil
}
