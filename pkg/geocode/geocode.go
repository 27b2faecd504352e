// Package geocode resolves incident street addresses to coordinates through
// a read-through cache backed by the Mapbox geocoding API.
package geocode

import (
	"context"
	"math"
)

// Coordinates is a latitude/longitude pair. Both values are always present
// together; there is no partial coordinate.
type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// Valid reports whether both values are finite and within WGS84 bounds.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Result holds the output of a single provider lookup. Billed is set only
// when the provider actually served the request, so lookups skipped by an
// open breaker or a cancelled rate-limit wait are not metered as spend.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string
	PlaceName string
	Relevance float64
	Matched   bool
	Billed    bool
}

// Coordinates returns the matched point.
func (r *Result) Coordinates() Coordinates {
	return Coordinates{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Provider represents the external geocoding backend. Implementations treat
// timeouts, bad statuses and malformed bodies as an unmatched Result.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, address string) (*Result, error)
	Available() bool
}

// Cache is the persistence contract the Resolver reads through. Get returns
// ok=false for an unknown key. Put only ever receives complete coordinates.
type Cache interface {
	Get(ctx context.Context, key string) (Coordinates, bool, error)
	Put(ctx context.Context, key string, c Coordinates) error
}

// Recorder receives resolver events for usage metering.
type Recorder interface {
	CacheHit()
	CacheMiss()
	ProviderCall(billed, matched bool)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()               {}
func (nopRecorder) CacheMiss()              {}
func (nopRecorder) ProviderCall(bool, bool) {}

type multiRecorder []Recorder

func (m multiRecorder) CacheHit() {
	for _, r := range m {
		r.CacheHit()
	}
}

func (m multiRecorder) CacheMiss() {
	for _, r := range m {
		r.CacheMiss()
	}
}

func (m multiRecorder) ProviderCall(billed, matched bool) {
	for _, r := range m {
		r.ProviderCall(billed, matched)
	}
}

type recorderKey struct{}

// ContextWithRecorder attaches rec to ctx. Resolve reports events to it in
// addition to the Resolver's own Recorder, which lets a caller count a
// single batch.
func ContextWithRecorder(ctx context.Context, rec Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, rec)
}

func recorderFromContext(ctx context.Context) Recorder {
	rec, _ := ctx.Value(recorderKey{}).(Recorder)
	return rec
}
