package cost

import "sync/atomic"

// Meter counts resolver events. It implements geocode.Recorder and is safe
// for concurrent use.
type Meter struct {
	hits    atomic.Int64
	misses  atomic.Int64
	calls   atomic.Int64
	skipped atomic.Int64
	matches atomic.Int64
}

// NewMeter creates a zeroed Meter.
func NewMeter() *Meter { return &Meter{} }

// CacheHit counts a lookup served from the cache.
func (m *Meter) CacheHit() { m.hits.Add(1) }

// CacheMiss counts a lookup the cache could not serve.
func (m *Meter) CacheMiss() { m.misses.Add(1) }

// ProviderCall counts a provider lookup. Only billed lookups are priced;
// the rest were skipped before reaching Mapbox.
func (m *Meter) ProviderCall(billed, matched bool) {
	if !billed {
		m.skipped.Add(1)
		return
	}
	m.calls.Add(1)
	if matched {
		m.matches.Add(1)
	}
}

// Usage is a point-in-time copy of a Meter with spend estimates.
type Usage struct {
	CacheHits       int64   `json:"cache_hits"`
	CacheMisses     int64   `json:"cache_misses"`
	ProviderCalls   int64   `json:"provider_calls"`
	ProviderSkipped int64   `json:"provider_skipped"`
	ProviderMatches int64   `json:"provider_matches"`
	HitRate         float64 `json:"hit_rate"`
	EstimatedSpend  float64 `json:"estimated_spend_usd"`
	EstimatedSaved  float64 `json:"estimated_saved_usd"`
}

// Snapshot reads the counters and prices them with calc. A nil calc leaves
// the spend fields zero.
func (m *Meter) Snapshot(calc *Calculator) Usage {
	u := Usage{
		CacheHits:       m.hits.Load(),
		CacheMisses:     m.misses.Load(),
		ProviderCalls:   m.calls.Load(),
		ProviderSkipped: m.skipped.Load(),
		ProviderMatches: m.matches.Load(),
	}
	if total := u.CacheHits + u.CacheMisses; total > 0 {
		u.HitRate = float64(u.CacheHits) / float64(total)
	}
	if calc != nil {
		u.EstimatedSpend = calc.Geocode(u.ProviderCalls)
		u.EstimatedSaved = calc.Saved(u.CacheHits)
	}
	return u
}
