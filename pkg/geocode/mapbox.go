package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/fire-incidents/internal/resilience"
)

const mapboxGeocodeURL = "https://api.mapbox.com/geocoding/v5/mapbox.places/"

// mapboxResponse is the JSON response from the Mapbox forward geocoding API.
type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}

// MapboxOption configures the MapboxProvider.
type MapboxOption func(*MapboxProvider)

// WithMapboxBaseURL overrides the geocoding endpoint (trailing slash expected).
func WithMapboxBaseURL(u string) MapboxOption {
	return func(p *MapboxProvider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithMapboxHTTPClient sets a custom HTTP client.
func WithMapboxHTTPClient(hc *http.Client) MapboxOption {
	return func(p *MapboxProvider) {
		p.httpClient = hc
	}
}

// WithProximity biases results toward the given point.
func WithProximity(lat, lon float64) MapboxOption {
	return func(p *MapboxProvider) {
		p.proximity = &Coordinates{Latitude: lat, Longitude: lon}
	}
}

// WithCountry restricts results to an ISO 3166 alpha-2 country code.
func WithCountry(code string) MapboxOption {
	return func(p *MapboxProvider) {
		p.country = code
	}
}

// WithTimeout bounds each provider request.
func WithTimeout(d time.Duration) MapboxOption {
	return func(p *MapboxProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second ceiling for provider calls.
func WithRateLimit(rps float64) MapboxOption {
	return func(p *MapboxProvider) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithBreaker guards provider calls with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) MapboxOption {
	return func(p *MapboxProvider) {
		p.breaker = cb
	}
}

// MapboxProvider geocodes addresses with the Mapbox Geocoding API.
type MapboxProvider struct {
	token      string
	baseURL    string
	httpClient *http.Client
	proximity  *Coordinates
	country    string
	timeout    time.Duration
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
}

// NewMapboxProvider creates a MapboxProvider. An empty token yields a provider
// whose lookups are always unmatched.
func NewMapboxProvider(token string, opts ...MapboxOption) *MapboxProvider {
	p := &MapboxProvider{
		token:      token,
		baseURL:    mapboxGeocodeURL,
		httpClient: &http.Client{},
		timeout:    5 * time.Second,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *MapboxProvider) Name() string { return "mapbox" }

// Available implements Provider.
func (p *MapboxProvider) Available() bool { return p.token != "" }

// Geocode implements Provider. Every failure is logged and reported as an
// unmatched result; the error return is always nil.
func (p *MapboxProvider) Geocode(ctx context.Context, address string) (*Result, error) {
	if !p.Available() {
		zap.L().Warn("mapbox: access token not configured, skipping geocode",
			zap.String("address", address),
		)
		return &Result{Matched: false, Source: "mapbox"}, nil
	}

	var (
		result *Result
		err    error
	)
	if p.breaker != nil {
		result, err = resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*Result, error) {
			return p.lookup(ctx, address)
		})
	} else {
		result, err = p.lookup(ctx, address)
	}
	if err != nil {
		zap.L().Warn("mapbox: geocode failed",
			zap.String("address", address),
			zap.Error(err),
		)
		return &Result{Matched: false, Source: "mapbox", Billed: result != nil && result.Billed}, nil
	}
	return result, nil
}

// lookup performs one request. Transport errors, timeouts and bad statuses
// come back as errors so the breaker can count them. Once Mapbox has answered
// 200 the returned Result is marked Billed, even alongside an error.
func (p *MapboxProvider) lookup(ctx context.Context, address string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "mapbox: rate limit")
	}

	params := url.Values{
		"access_token": {p.token},
		"limit":        {"1"},
		"autocomplete": {"false"},
	}
	if p.country != "" {
		params.Set("country", p.country)
	}
	if p.proximity != nil {
		params.Set("proximity",
			strconv.FormatFloat(p.proximity.Longitude, 'f', -1, 64)+","+
				strconv.FormatFloat(p.proximity.Latitude, 'f', -1, 64))
	}

	reqURL := p.baseURL + url.PathEscape(address) + ".json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "mapbox: build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mapbox: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("mapbox: returned status %d", resp.StatusCode)
	}

	unmatched := &Result{Matched: false, Source: "mapbox", Billed: true}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return unmatched, eris.Wrap(err, "mapbox: read body")
	}

	var mbResp mapboxResponse
	if err := json.Unmarshal(body, &mbResp); err != nil {
		return unmatched, eris.Wrap(err, "mapbox: parse response")
	}

	if len(mbResp.Features) == 0 || len(mbResp.Features[0].Center) != 2 {
		return unmatched, nil
	}

	f := mbResp.Features[0]
	result := &Result{
		Latitude:  f.Center[1],
		Longitude: f.Center[0],
		Source:    "mapbox",
		PlaceName: f.PlaceName,
		Relevance: f.Relevance,
		Matched:   true,
		Billed:    true,
	}
	if !result.Coordinates().Valid() {
		return unmatched, nil
	}
	return result, nil
}
