package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fire-incidents/internal/config"
	"github.com/sells-group/fire-incidents/internal/cost"
	"github.com/sells-group/fire-incidents/internal/extract"
	"github.com/sells-group/fire-incidents/internal/fetcher"
	"github.com/sells-group/fire-incidents/internal/geocache"
	"github.com/sells-group/fire-incidents/internal/pipeline"
	"github.com/sells-group/fire-incidents/internal/resilience"
	"github.com/sells-group/fire-incidents/pkg/geocode"
)

// appEnv holds the wired components shared by the serve, fetch and geocode
// commands.
type appEnv struct {
	Store      geocache.Store
	Resolver   *geocode.Resolver
	Pipeline   *pipeline.Pipeline
	Meter      *cost.Meter
	Calculator *cost.Calculator
	Breakers   map[string]*resilience.CircuitBreaker
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the geocode cache and builds the pipeline. A cache that
// cannot be opened is replaced by an in-memory one so the service still
// runs, paying for provider calls it would otherwise have cached.
func initEnv(ctx context.Context, c *config.Config) (*appEnv, error) {
	st, err := geocache.OpenMigrated(ctx, c.Cache)
	if err != nil {
		zap.L().Warn("geocode cache unavailable, falling back to memory",
			zap.String("driver", c.Cache.Driver),
			zap.Error(err),
		)
		st = geocache.NewMemory()
	}

	layout, err := loadLayout(c.Source)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	guarded := geocache.NewGuarded(st, newBreaker("geocode_cache", c.Geocode))
	mapboxBreaker := newBreaker("mapbox", c.Geocode)

	provider := geocode.NewMapboxProvider(c.Geocode.MapboxToken,
		geocode.WithMapboxBaseURL(c.Geocode.BaseURL),
		geocode.WithProximity(c.Geocode.ProximityLat, c.Geocode.ProximityLon),
		geocode.WithCountry(c.Geocode.Country),
		geocode.WithTimeout(c.Geocode.Timeout()),
		geocode.WithRateLimit(c.Geocode.RateLimitRPS),
		geocode.WithBreaker(mapboxBreaker),
	)
	if !provider.Available() {
		zap.L().Warn("mapbox token not set, incidents will not be geocoded on cache miss")
	}

	meter := cost.NewMeter()
	resolver := geocode.NewResolver(
		geocode.NewNormalizer(c.Geocode.Locality),
		guarded,
		provider,
		geocode.WithRecorder(meter),
		geocode.WithCacheTimeout(c.Cache.Timeout()),
	)

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    c.Source.UserAgent,
		Timeout:      c.Source.Timeout(),
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	p := pipeline.New(f, extract.NewExtractor(layout), resolver, pipeline.Options{
		SourceURL:    c.Source.BaseURL,
		Location:     c.Source.Location(),
		DateLayout:   c.Source.DateLayout,
		EnrichLimit:  c.Geocode.EnrichLimit,
		Concurrency:  c.Geocode.Concurrency,
		FetchTimeout: c.Source.Timeout(),
	})

	return &appEnv{
		Store:      guarded,
		Resolver:   resolver,
		Pipeline:   p,
		Meter:      meter,
		Calculator: cost.NewCalculator(cost.Rates{GeocodePer1000: c.Pricing.GeocodePer1000}),
		Breakers: map[string]*resilience.CircuitBreaker{
			"geocode_cache": guarded.Breaker(),
			"mapbox":        mapboxBreaker,
		},
	}, nil
}

// loadLayout returns the table layout override named by source.layout_path,
// or the built-in layout when none is set.
func loadLayout(s config.SourceConfig) (extract.Layout, error) {
	if s.LayoutPath == "" {
		return extract.DefaultLayout(), nil
	}
	layout, err := extract.LoadLayout(s.LayoutPath)
	if err != nil {
		return extract.Layout{}, eris.Wrap(err, "load source layout")
	}
	zap.L().Info("using table layout override", zap.String("path", s.LayoutPath))
	return layout, nil
}

func newBreaker(name string, g config.GeocodeConfig) *resilience.CircuitBreaker {
	bc := resilience.DefaultCircuitBreakerConfig()
	if g.BreakerFailures > 0 {
		bc.FailureThreshold = g.BreakerFailures
	}
	if g.BreakerReset() > 0 {
		bc.ResetTimeout = g.BreakerReset()
	}
	bc.OnStateChange = resilience.StateLogger(name)
	return resilience.NewCircuitBreaker(bc)
}
