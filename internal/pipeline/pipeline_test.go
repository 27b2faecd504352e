package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/fire-incidents/internal/geocache"
	"github.com/sells-group/fire-incidents/pkg/geocode"
	"github.com/sells-group/fire-incidents/pkg/geocode/mocks"
)

func TestFetchIncidents_UpstreamFailure(t *testing.T) {
	up := newUpstream(t, http.StatusServiceUnavailable, "down for maintenance")
	r := &mockResolver{}
	p := newTestPipeline(up.URL, r, Options{})

	result, err := p.FetchIncidents(context.Background(), "1/2/2024")
	require.Error(t, err)
	assert.Nil(t, result)

	var ingestErr *IngestionError
	require.True(t, errors.As(err, &ingestErr))
	assert.Equal(t, "1/2/2024", ingestErr.Date)
	assert.Contains(t, ingestErr.Error(), "503")
	r.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestFetchIncidents_UnreachableUpstream(t *testing.T) {
	p := newTestPipeline("http://127.0.0.1:1", nil, Options{FetchTimeout: time.Second})

	_, err := p.FetchIncidents(context.Background(), "1/2/2024")
	var ingestErr *IngestionError
	require.ErrorAs(t, err, &ingestErr)
}

func TestFetchIncidents_BoundedEnrichment(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML(numberedRows(35)))

	r := &mockResolver{}
	r.On("Resolve", mock.Anything, mock.Anything).
		Return(geocode.Coordinates{Latitude: 47.6, Longitude: -122.3}, true)

	p := newTestPipeline(up.URL, r, Options{})
	result, err := p.FetchIncidents(context.Background(), "1/2/2024")
	require.NoError(t, err)
	require.Len(t, result.Incidents, 35)

	r.AssertNumberOfCalls(t, "Resolve", 30)
	for i, inc := range result.Incidents {
		assert.Equal(t, "F"+pad4(i), inc.IncidentNumber, "order at %d", i)
		if i < 30 {
			assert.True(t, inc.HasCoordinates(), "incident %d should be enriched", i)
		} else {
			assert.False(t, inc.HasCoordinates(), "incident %d is beyond the cap", i)
		}
	}
}

func TestFetchIncidents_ResolvesInDocumentOrder(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML(numberedRows(5)))

	var seen []string
	r := funcResolver(func(_ context.Context, raw string) (geocode.Coordinates, bool) {
		seen = append(seen, raw)
		return geocode.Coordinates{}, false
	})

	p := newTestPipeline(up.URL, r, Options{})
	result, err := p.FetchIncidents(context.Background(), "1/2/2024")
	require.NoError(t, err)

	assert.Equal(t, []string{"0 Main St", "1 Main St", "2 Main St", "3 Main St", "4 Main St"}, seen)
	for _, inc := range result.Incidents {
		assert.False(t, inc.HasCoordinates())
	}
}

func TestFetchIncidents_ConcurrentPreservesOrder(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML(numberedRows(30)))

	var inflight, peak atomic.Int32
	r := funcResolver(func(_ context.Context, raw string) (geocode.Coordinates, bool) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)

		idx, _ := strconv.Atoi(strings.Fields(raw)[0])
		return geocode.Coordinates{Latitude: float64(idx), Longitude: -float64(idx)}, true
	})

	p := newTestPipeline(up.URL, r, Options{Concurrency: 4})
	result, err := p.FetchIncidents(context.Background(), "1/2/2024")
	require.NoError(t, err)

	for i, inc := range result.Incidents {
		require.True(t, inc.HasCoordinates())
		assert.Equal(t, float64(i), *inc.Latitude)
		assert.Equal(t, -float64(i), *inc.Longitude)
	}
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestFetchIncidents_DefaultDate(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML(nil))

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 06:00 UTC on Jan 2 is still Jan 1 in Seattle.
	now := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	p := newTestPipeline(up.URL, nil, Options{
		Location: la,
		Now:      func() time.Time { return now },
	})

	result, err := p.FetchIncidents(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "1/1/2024", result.Date)
	assert.Equal(t, []string{"1/1/2024"}, up.requestedDates())
}

func TestFetchIncidents_CallerDatePassedThrough(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML(nil))
	p := newTestPipeline(up.URL, nil, Options{})

	result, err := p.FetchIncidents(context.Background(), "12/25/2023")
	require.NoError(t, err)
	assert.Equal(t, "12/25/2023", result.Date)
	assert.Equal(t, []string{"12/25/2023"}, up.requestedDates())
}

func TestFetchIncidents_EmptyTableSerializesAsArray(t *testing.T) {
	up := newUpstream(t, http.StatusOK, "<html><body>No incidents</body></html>")
	p := newTestPipeline(up.URL, nil, Options{})

	result, err := p.FetchIncidents(context.Background(), "1/2/2024")
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"incidents":[],"date":"1/2/2024"}`, string(data))
}

func TestFetchIncidents_IgnoresCallerCancellation(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML(numberedRows(3)))

	ctx, cancel := context.WithCancel(context.Background())
	r := funcResolver(func(ctx context.Context, _ string) (geocode.Coordinates, bool) {
		cancel()
		if ctx.Err() != nil {
			return geocode.Coordinates{}, false
		}
		return geocode.Coordinates{Latitude: 1, Longitude: 1}, true
	})

	p := newTestPipeline(up.URL, r, Options{})
	result, err := p.FetchIncidents(ctx, "1/2/2024")
	require.NoError(t, err)
	for _, inc := range result.Incidents {
		assert.True(t, inc.HasCoordinates())
	}
}

func TestFetchIncidents_CachedLocationSkipsProvider(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML([]row{
		{number: "F1", level: "1", location: "123 Main St", typ: "Aid Response"},
		{number: "F2", level: "1", location: "123 Main St", typ: "Medic Response"},
	}))

	cache := geocache.NewMemory()
	require.NoError(t, cache.Put(context.Background(), "123 main st, seattle, wa",
		geocode.Coordinates{Latitude: 47.60, Longitude: -122.33}))

	provider := mocks.NewMockProvider(t)
	resolver := geocode.NewResolver(geocode.NewNormalizer("Seattle, WA"), cache, provider)

	p := newTestPipeline(up.URL, resolver, Options{})
	result, err := p.FetchIncidents(context.Background(), "1/2/2024")
	require.NoError(t, err)
	require.Len(t, result.Incidents, 2)

	for _, inc := range result.Incidents {
		require.True(t, inc.HasCoordinates())
		assert.Equal(t, 47.60, *inc.Latitude)
		assert.Equal(t, -122.33, *inc.Longitude)
	}
	provider.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestFetchIncidents_RepeatLocationOneProviderCall(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML([]row{
		{number: "F1", level: "1", location: "500 Pine St", typ: "Aid Response"},
		{number: "F2", level: "1", location: "500 PINE ST", typ: "Aid Response"},
	}))

	provider := mocks.NewMockProvider(t)
	provider.On("Available").Return(true)
	provider.On("Geocode", mock.Anything, "500 pine st, seattle, wa").
		Return(&geocode.Result{Latitude: 47.61, Longitude: -122.33, Matched: true}, nil).Once()

	resolver := geocode.NewResolver(geocode.NewNormalizer("Seattle, WA"), geocache.NewMemory(), provider)
	p := newTestPipeline(up.URL, resolver, Options{})

	result, err := p.FetchIncidents(context.Background(), "1/2/2024")
	require.NoError(t, err)
	assert.True(t, result.Incidents[0].HasCoordinates())
	assert.True(t, result.Incidents[1].HasCoordinates())
}

func TestFetchIncidents_SummaryLogsBatchUsage(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	up := newUpstream(t, http.StatusOK, tableHTML([]row{
		{number: "F1", level: "1", location: "500 Pine St", typ: "Aid Response"},
		{number: "F2", level: "1", location: "500 Pine St", typ: "Aid Response"},
		{number: "F3", level: "1", location: "9 Nowhere Ln", typ: "Aid Response"},
	}))

	provider := mocks.NewMockProvider(t)
	provider.On("Available").Return(true)
	provider.On("Geocode", mock.Anything, "500 pine st, seattle, wa").
		Return(&geocode.Result{Latitude: 47.61, Longitude: -122.33, Matched: true, Billed: true}, nil).Once()
	provider.On("Geocode", mock.Anything, "9 nowhere ln, seattle, wa").
		Return(&geocode.Result{Matched: false, Billed: true}, nil).Once()

	resolver := geocode.NewResolver(geocode.NewNormalizer("Seattle, WA"), geocache.NewMemory(), provider)
	p := newTestPipeline(up.URL, resolver, Options{})

	_, err := p.FetchIncidents(context.Background(), "1/2/2024")
	require.NoError(t, err)

	entries := logs.FilterMessage("pipeline: incidents fetched").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(3), fields["attempted"])
	assert.Equal(t, int64(2), fields["enriched"])
	assert.Equal(t, int64(1), fields["cache_hits"])
	assert.Equal(t, int64(2), fields["provider_calls"])
}

func TestExtract_NoGeocoding(t *testing.T) {
	up := newUpstream(t, http.StatusOK, tableHTML(numberedRows(2)))
	r := &mockResolver{}
	p := newTestPipeline(up.URL, r, Options{})

	incidents, date, err := p.Extract(context.Background(), "1/2/2024")
	require.NoError(t, err)
	assert.Equal(t, "1/2/2024", date)
	assert.Len(t, incidents, 2)
	r.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestSourceURL(t *testing.T) {
	p := New(nil, nil, nil, Options{SourceURL: "https://web.seattle.gov/sfd/realtime911/getRecsForDatePub.asp"})

	got, err := p.SourceURL("1/2/2024")
	require.NoError(t, err)
	assert.Equal(t, "https://web.seattle.gov/sfd/realtime911/getRecsForDatePub.asp?incDate=1%2F2%2F2024", got)

	p = New(nil, nil, nil, Options{SourceURL: "https://example.com/feed?format=html"})
	got, err = p.SourceURL("1/2/2024")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/feed?format=html&incDate=1%2F2%2F2024", got)

	p = New(nil, nil, nil, Options{SourceURL: "://bad"})
	_, err = p.SourceURL("1/2/2024")
	assert.Error(t, err)
}

func pad4(i int) string {
	s := strconv.Itoa(i)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
