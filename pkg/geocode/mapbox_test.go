package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fire-incidents/internal/resilience"
)

func newTestMapbox(srv *httptest.Server, opts ...MapboxOption) *MapboxProvider {
	base := []MapboxOption{
		WithMapboxHTTPClient(newRewriteClient(srv.URL, mapboxGeocodeURL)),
		WithProximity(47.6062, -122.3321),
		WithCountry("us"),
	}
	p := NewMapboxProvider("test-token", append(base, opts...)...)
	p.limiter = newTestLimiter()
	return p
}

func TestMapbox_Match(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"type": "FeatureCollection",
			"features": [{
				"center": [-122.3331, 47.6097],
				"place_name": "123 Main St, Seattle, Washington 98104, United States",
				"relevance": 0.96
			}]
		}`)
	}))
	defer srv.Close()

	p := newTestMapbox(srv)
	result, err := p.Geocode(context.Background(), "123 main st, seattle, wa")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Matched)
	assert.Equal(t, "mapbox", result.Source)
	assert.InDelta(t, 47.6097, result.Latitude, 0.0001)
	assert.InDelta(t, -122.3331, result.Longitude, 0.0001)
	assert.InDelta(t, 0.96, result.Relevance, 0.001)

	assert.Equal(t, "/123 main st, seattle, wa.json", gotPath)
	assert.Equal(t, []string{"test-token"}, gotQuery["access_token"])
	assert.Equal(t, []string{"-122.3321,47.6062"}, gotQuery["proximity"])
	assert.Equal(t, []string{"us"}, gotQuery["country"])
	assert.Equal(t, []string{"1"}, gotQuery["limit"])
}

func TestMapbox_NoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"type": "FeatureCollection", "features": []}`)
	}))
	defer srv.Close()

	result, err := newTestMapbox(srv).Geocode(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.True(t, result.Billed)
}

func TestMapbox_MalformedCenter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"features": [{"center": [-122.33]}]}`)
	}))
	defer srv.Close()

	result, err := newTestMapbox(srv).Geocode(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestMapbox_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<html>not json</html>`)
	}))
	defer srv.Close()

	p := newTestMapbox(srv)
	_, err := p.lookup(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")

	result, err := p.Geocode(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.True(t, result.Billed)
}

func TestMapbox_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestMapbox(srv)
	_, err := p.lookup(context.Background(), "123 main st")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")

	result, err := p.Geocode(context.Background(), "123 main st")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.False(t, result.Billed)
}

func TestMapbox_TimeoutIsUnmatched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = io.WriteString(w, `{"features": []}`)
	}))
	defer srv.Close()

	p := newTestMapbox(srv, WithTimeout(50*time.Millisecond))

	start := time.Now()
	result, err := p.Geocode(context.Background(), "slow st")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMapbox_NoToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	p := NewMapboxProvider("", WithMapboxHTTPClient(newRewriteClient(srv.URL, mapboxGeocodeURL)))
	assert.False(t, p.Available())

	result, err := p.Geocode(context.Background(), "123 main st")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, int32(0), calls.Load())
}

func TestMapbox_BreakerStopsCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	})
	p := newTestMapbox(srv, WithBreaker(cb))

	for i := 0; i < 5; i++ {
		result, err := p.Geocode(context.Background(), "123 main st")
		require.NoError(t, err)
		assert.False(t, result.Matched)
		assert.False(t, result.Billed)
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, resilience.CircuitOpen, cb.State())
}

func TestCoordinates_Valid(t *testing.T) {
	assert.True(t, Coordinates{Latitude: 47.6, Longitude: -122.3}.Valid())
	assert.True(t, Coordinates{}.Valid())
	assert.False(t, Coordinates{Latitude: 91, Longitude: 0}.Valid())
	assert.False(t, Coordinates{Latitude: 0, Longitude: -181}.Valid())
}
