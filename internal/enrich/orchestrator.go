package enrich

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/resale-enrich/internal/address"
	"github.com/sells-group/resale-enrich/internal/config"
	"github.com/sells-group/resale-enrich/internal/coords"
	"github.com/sells-group/resale-enrich/internal/locache"
	"github.com/sells-group/resale-enrich/internal/proximity"
	"github.com/sells-group/resale-enrich/internal/resilience"
	"github.com/sells-group/resale-enrich/internal/stats"
	"github.com/sells-group/resale-enrich/internal/throttle"
	"github.com/sells-group/resale-enrich/pkg/onemap"
)

// Geocoder resolves a one-line address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*onemap.GeocodeResult, error)
}

// StationLocator finds the nearest station to a point.
type StationLocator interface {
	FindNearest(ctx context.Context, lat, lon float64) (proximity.Result, error)
}

// tiered is implemented by locators with configurable radii.
type tiered interface {
	FirstTierKm() float64
}

// Deps are the collaborators of an Orchestrator. Geocoder and Stations may
// be nil for runs that are fully served by the cache.
type Deps struct {
	Cache    *locache.Cache
	Coords   *coords.Table
	Geocoder Geocoder
	Stations StationLocator
	// Throttle is waited on after every geocode call and after every
	// resolved address.
	Throttle throttle.Throttle
}

// Options tune a run.
type Options struct {
	// Workers > 1 resolves addresses concurrently under one shared rate.
	Workers int
	// ProgressEvery logs progress every N processed addresses.
	ProgressEvery int
	// OnProgress is called after each processed address. It may be called
	// concurrently when Workers > 1.
	OnProgress func(Progress)
}

// Progress is a point-in-time view of a run.
type Progress struct {
	Done     int
	Total    int
	Counters stats.Counters
}

// Result is the output of a run.
type Result struct {
	Records []EnrichedRecord
	Plan    Plan
	Report  stats.Report
}

// Orchestrator runs the plan, resolve, and join stages.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New creates an Orchestrator. A nil cache is replaced with an in-memory
// one and a nil throttle with throttle.None. With more than one worker a
// fixed-delay throttle becomes a shared token bucket at the same rate.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Cache == nil {
		deps.Cache, _ = locache.Open(context.Background(), locache.NewMemoryStore(nil), 0)
	}
	if deps.Coords == nil {
		deps.Coords = coords.Empty()
	}
	if deps.Throttle == nil {
		deps.Throttle = throttle.None{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Workers > 1 {
		deps.Throttle = throttle.Shared(deps.Throttle)
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 50
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// Plan partitions records without making any calls.
func (o *Orchestrator) Plan(records []Record) Plan {
	return BuildPlan(records, o.deps.Cache, o.deps.Coords)
}

// Run enriches records. It returns config.ErrConfigMissing before doing any
// work when uncached addresses exist but no client is configured. On
// cancellation the cache is still flushed and a partial Result is returned
// alongside the context error.
func (o *Orchestrator) Run(ctx context.Context, records []Record) (*Result, error) {
	started := time.Now().UTC()
	plan := o.Plan(records)

	if err := o.checkClients(plan); err != nil {
		return nil, err
	}

	col := stats.NewCollector()
	col.Plan(plan.Records, plan.Unique, plan.Invalid, len(plan.Cached), len(plan.ProximityOnly), len(plan.FullGeocode))

	log := zap.L().With(zap.String("component", "enrich"))
	log.Info("enrichment plan",
		zap.Int("records", plan.Records),
		zap.Int("unique_addresses", plan.Unique),
		zap.Int("cached", len(plan.Cached)),
		zap.Int("has_coords", len(plan.ProximityOnly)),
		zap.Int("need_geocode", len(plan.FullGeocode)),
		zap.Int("estimated_calls", plan.EstimatedCalls()),
	)

	failures := &failureList{}
	runErr := o.process(ctx, plan.Pending(), col, failures)
	if runErr != nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	var flushErr error
	if o.deps.Cache.Dirty() > 0 || len(plan.Pending()) > 0 {
		flushErr = o.deps.Cache.Flush(context.WithoutCancel(ctx))
		if flushErr != nil {
			log.Error("final cache flush failed", zap.Error(flushErr))
		} else {
			log.Info("cache saved", zap.Int("entries", o.deps.Cache.Len()))
		}
	}

	enriched := o.join(records)
	locations := make([]*locache.Entry, len(enriched))
	for i := range enriched {
		locations[i] = enriched[i].Location
	}

	report := stats.Summarize(col.Snapshot(), locations, failures.sorted(), o.firstTierKm())
	report.StartedAt = started
	report.FinishedAt = time.Now().UTC()
	report.DurationMs = report.FinishedAt.Sub(started).Milliseconds()

	res := &Result{Records: enriched, Plan: plan, Report: report}

	if runErr != nil {
		return res, runErr
	}
	if flushErr != nil {
		return res, eris.Wrap(flushErr, "enrich: final cache flush")
	}
	return res, nil
}

func (o *Orchestrator) firstTierKm() float64 {
	if t, ok := o.deps.Stations.(tiered); ok {
		return t.FirstTierKm()
	}
	return proximity.Tier1RadiusKm
}

func (o *Orchestrator) checkClients(plan Plan) error {
	if len(plan.ProximityOnly) > 0 && o.deps.Stations == nil {
		return eris.Wrapf(config.ErrConfigMissing, "enrich: %d addresses need a station lookup client", len(plan.ProximityOnly))
	}
	if len(plan.FullGeocode) > 0 && (o.deps.Geocoder == nil || o.deps.Stations == nil) {
		return eris.Wrapf(config.ErrConfigMissing, "enrich: %d addresses need a geocoding client", len(plan.FullGeocode))
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, pending []Address, col *stats.Collector, failures *failureList) error {
	total := len(pending)
	if total == 0 {
		return nil
	}

	if o.opts.Workers <= 1 {
		for _, a := range pending {
			if err := o.resolve(ctx, a, total, col, failures); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for _, a := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return o.resolve(gctx, a, total, col, failures)
		})
	}
	return g.Wait()
}

// resolve handles one address. It returns an error only when the context
// is done; provider failures are recorded and the run continues.
func (o *Orchestrator) resolve(ctx context.Context, a Address, total int, col *stats.Collector, failures *failureList) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var lat, lon float64
	if a.Coords != nil {
		lat, lon = a.Coords.Latitude, a.Coords.Longitude
	} else {
		res, err := o.deps.Geocoder.Geocode(ctx, a.Query())
		col.Calls(1)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || !res.Matched {
			o.fail(a, err, total, col, failures)
			return o.deps.Throttle.Wait(ctx)
		}
		col.GeocodeSucceeded()
		lat, lon = res.Latitude, res.Longitude

		if err := o.deps.Throttle.Wait(ctx); err != nil {
			return err
		}
	}

	prox, err := o.deps.Stations.FindNearest(ctx, lat, lon)
	col.Calls(prox.Calls)
	if err != nil {
		return err
	}

	entry := locache.Entry{
		Block:      a.Block,
		StreetName: a.Street,
		Latitude:   lat,
		Longitude:  lon,
	}
	if prox.Found {
		name, dist, radius := prox.Station, prox.DistanceKm, prox.RadiusKm
		entry.NearestMRT = &name
		entry.DistMRTKm = &dist
		entry.SearchRadiusKm = &radius
	}
	o.deps.Cache.Put(ctx, a.Key, entry)

	done := col.Resolved(prox.Tier, prox.FailedTiers)
	o.progress(done, total, col)

	return o.deps.Throttle.Wait(ctx)
}

func (o *Orchestrator) fail(a Address, err error, total int, col *stats.Collector, failures *failureList) {
	f := stats.Failure{Key: a.Key.String(), Reason: stats.ReasonNotFound}
	if err != nil {
		f.Reason = stats.ReasonServiceError
		f.Class = resilience.ClassifyError(err)
		f.Error = err.Error()
	}
	failures.add(f)

	zap.L().Warn("geocode failed",
		zap.String("address", f.Key),
		zap.String("reason", f.Reason),
		zap.Error(err),
	)

	done := col.GeocodeFailed(err == nil)
	o.progress(done, total, col)
}

func (o *Orchestrator) progress(done, total int, col *stats.Collector) {
	var snap stats.Counters
	logIt := done == 1 || done%o.opts.ProgressEvery == 0 || done == total
	if logIt || o.opts.OnProgress != nil {
		snap = col.Snapshot()
	}
	if logIt {
		zap.L().Info("enrichment progress",
			zap.Int("done", done),
			zap.Int("total", total),
			zap.Int("has_coords", snap.HasCoords),
			zap.Int("need_geocode", snap.NeedGeocode),
			zap.Int("mrt_2km", snap.Within2Km),
			zap.Int("mrt_5km", snap.Within5Km),
			zap.Int("failures", snap.Failed()),
		)
	}
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(Progress{Done: done, Total: total, Counters: snap})
	}
}

// join attaches each record's cache entry by exact key. Records sharing a
// key share one Entry value, which must not be mutated.
func (o *Orchestrator) join(records []Record) []EnrichedRecord {
	snapshot := o.deps.Cache.Snapshot()
	shared := make(map[address.Key]*locache.Entry)

	out := make([]EnrichedRecord, len(records))
	for i, r := range records {
		key := r.Key()
		out[i] = EnrichedRecord{Record: r, Key: key}
		if key.IsZero() {
			continue
		}
		if e, ok := shared[key]; ok {
			out[i].Location = e
			continue
		}
		if e, ok := snapshot[key]; ok {
			e := e
			shared[key] = &e
			out[i].Location = &e
		}
	}
	return out
}

type failureList struct {
	mu   sync.Mutex
	list []stats.Failure
}

func (l *failureList) add(f stats.Failure) {
	l.mu.Lock()
	l.list = append(l.list, f)
	l.mu.Unlock()
}

func (l *failureList) sorted() []stats.Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]stats.Failure(nil), l.list...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
