package geocache

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/fire-incidents/internal/resilience"
	"github.com/sells-group/fire-incidents/pkg/geocode"
)

// Guarded wraps a Store with a circuit breaker. While the breaker is open,
// Get reports absent without touching the store and Put fails fast, so a
// store outage costs one timeout per reset window instead of one per lookup.
type Guarded struct {
	Store
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps st with cb.
func NewGuarded(st Store, cb *resilience.CircuitBreaker) *Guarded {
	return &Guarded{Store: st, breaker: cb}
}

// Get implements geocode.Cache. Store errors and an open breaker both come
// back as absent with a nil error.
func (g *Guarded) Get(ctx context.Context, key string) (geocode.Coordinates, bool, error) {
	type hit struct {
		c  geocode.Coordinates
		ok bool
	}
	h, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (hit, error) {
		c, ok, err := g.Store.Get(ctx, key)
		return hit{c: c, ok: ok}, err
	})
	if err != nil {
		zap.L().Warn("geocache: get failed, treating as absent",
			zap.String("address", key),
			zap.Error(err),
		)
		return geocode.Coordinates{}, false, nil
	}
	return h.c, h.ok, nil
}

// Put implements geocode.Cache.
func (g *Guarded) Put(ctx context.Context, key string, c geocode.Coordinates) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.Store.Put(ctx, key, c)
	})
}

// Breaker exposes the breaker for health reporting.
func (g *Guarded) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}
