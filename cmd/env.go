package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resale-enrich/internal/coords"
	"github.com/sells-group/resale-enrich/internal/enrich"
	"github.com/sells-group/resale-enrich/internal/locache"
	"github.com/sells-group/resale-enrich/internal/proximity"
	"github.com/sells-group/resale-enrich/internal/resilience"
	"github.com/sells-group/resale-enrich/internal/runstore"
	"github.com/sells-group/resale-enrich/internal/tabular"
	"github.com/sells-group/resale-enrich/internal/throttle"
	"github.com/sells-group/resale-enrich/pkg/onemap"
)

// enrichEnv holds the cache, lookup tables, and clients shared by the
// enrich, plan, and lookup commands.
type enrichEnv struct {
	Cache  *locache.Cache
	Store  *locache.FileStore
	Coords *coords.Table
	Deps   enrich.Deps
}

// initEnrich loads the cache and coordinates table and, when a token is
// configured, builds the OneMap client and proximity engine. Without a token
// the clients stay nil and only cache-served runs succeed.
func initEnrich(ctx context.Context, cacheFile string) (*enrichEnv, error) {
	if err := cfg.Validate("enrich"); err != nil {
		return nil, err
	}
	if cacheFile == "" {
		cacheFile = cfg.Enrich.CacheFile
	}

	fs := locache.NewFileStore(cacheFile)
	cache, err := locache.Open(ctx, fs, cfg.Enrich.FlushEvery)
	if err != nil {
		return nil, eris.Wrap(err, "open location cache")
	}

	table, err := coords.Load(ctx, cfg.Enrich.CoordinatesFile)
	if err != nil {
		return nil, eris.Wrap(err, "load coordinates table")
	}
	if table.Len() > 0 {
		zap.L().Info("loaded coordinates table",
			zap.String("path", cfg.Enrich.CoordinatesFile),
			zap.Int("addresses", table.Len()),
			zap.Int("skipped_rows", table.Skipped()),
		)
	}

	env := &enrichEnv{Cache: cache, Store: fs, Coords: table}
	env.Deps = enrich.Deps{
		Cache:    cache,
		Coords:   table,
		Throttle: newThrottle(),
	}

	if cfg.RequireToken() == nil {
		delay := cfg.Enrich.Delay()
		client := onemap.NewClient(
			onemap.WithToken(cfg.OneMap.Token),
			onemap.WithTimeout(cfg.OneMap.Timeout()),
			onemap.WithSearchURL(cfg.OneMap.SearchURL),
			onemap.WithNearestURL(cfg.OneMap.NearestURL),
			onemap.WithRetry(resilience.PolicyFor(cfg.Retry.MaxAttempts, delay)),
		)
		env.Deps.Geocoder = client
		env.Deps.Stations = proximity.New(client, proximity.WithGap(throttle.Scale(delay, 0.5)))
	} else {
		zap.L().Warn("no OneMap token configured, only cached addresses can be enriched")
	}

	return env, nil
}

// newThrottle paces provider calls. A positive rate limit, or more than one
// worker, uses a token bucket shared across workers.
func newThrottle() throttle.Throttle {
	return throttle.New(cfg.Enrich.Delay(), cfg.Enrich.RateLimitRPS, cfg.Enrich.Workers)
}

// loadRecords reads an input table and extracts the address columns.
func loadRecords(ctx context.Context, path, blockCol, streetCol string) (*tabular.Table, []enrich.Record, error) {
	tbl, err := tabular.Read(ctx, path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "read input %s", path)
	}
	records, err := enrich.RecordsFromTable(tbl, blockCol, streetCol)
	if err != nil {
		return nil, nil, err
	}
	return tbl, records, nil
}

// initRunStore opens and migrates the run history database.
func initRunStore(ctx context.Context) (runstore.Store, error) {
	st, err := runstore.NewSQLite(cfg.Store.RunsDSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate run store")
	}
	return st, nil
}
