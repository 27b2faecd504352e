package geocode

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Resolver is the single geocoding entry point used by the ingestion
// pipeline: normalize, read the cache, call the provider on a miss, and
// write matched coordinates back.
type Resolver struct {
	normalizer   Normalizer
	cache        Cache
	provider     Provider
	recorder     Recorder
	cacheTimeout time.Duration
}

// ResolverOption configures the Resolver.
type ResolverOption func(*Resolver)

// WithRecorder reports cache and provider events to rec.
func WithRecorder(rec Recorder) ResolverOption {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithCacheTimeout bounds each cache read and write.
func WithCacheTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.cacheTimeout = d
		}
	}
}

// NewResolver creates a Resolver over the given cache and provider.
func NewResolver(normalizer Normalizer, cache Cache, provider Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		normalizer:   normalizer,
		cache:        cache,
		provider:     provider,
		recorder:     nopRecorder{},
		cacheTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns coordinates for a raw incident location. It never fails:
// any cache or provider problem is logged and yields ok=false.
func (r *Resolver) Resolve(ctx context.Context, rawAddress string) (Coordinates, bool) {
	key := r.normalizer.Key(rawAddress)
	rec := r.recorder
	if batch := recorderFromContext(ctx); batch != nil {
		rec = multiRecorder{r.recorder, batch}
	}

	if c, ok := r.lookup(ctx, key); ok {
		rec.CacheHit()
		return c, true
	}
	rec.CacheMiss()

	if r.provider == nil || !r.provider.Available() {
		zap.L().Debug("geocode: no provider available", zap.String("address", key))
		return Coordinates{}, false
	}

	result, err := r.provider.Geocode(ctx, key)
	matched := err == nil && result != nil && result.Matched && result.Coordinates().Valid()
	rec.ProviderCall(err == nil && result != nil && result.Billed, matched)
	if err != nil {
		zap.L().Warn("geocode: provider error",
			zap.String("provider", r.provider.Name()),
			zap.String("address", key),
			zap.Error(err),
		)
		return Coordinates{}, false
	}
	if !matched {
		return Coordinates{}, false
	}

	coords := result.Coordinates()
	r.store(ctx, key, coords)
	return coords, true
}

func (r *Resolver) lookup(ctx context.Context, key string) (Coordinates, bool) {
	if r.cache == nil {
		return Coordinates{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
	defer cancel()

	c, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("geocode: cache read failed, treating as miss",
			zap.String("address", key),
			zap.Error(err),
		)
		return Coordinates{}, false
	}
	if ok {
		zap.L().Debug("geocode cache hit", zap.String("address", key))
	}
	return c, ok
}

func (r *Resolver) store(ctx context.Context, key string, c Coordinates) {
	if r.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
	defer cancel()

	if err := r.cache.Put(ctx, key, c); err != nil {
		zap.L().Warn("geocode: cache write failed",
			zap.String("address", key),
			zap.Error(err),
		)
	}
}
