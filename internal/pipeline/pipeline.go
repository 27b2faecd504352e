// Package pipeline fetches the incident feed for a date, extracts records
// and geocodes a bounded prefix of them.
package pipeline

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fire-incidents/internal/extract"
	"github.com/sells-group/fire-incidents/internal/fetcher"
	"github.com/sells-group/fire-incidents/internal/model"
	"github.com/sells-group/fire-incidents/pkg/geocode"
)

// DefaultEnrichLimit is the number of leading records geocoded per request.
const DefaultEnrichLimit = 30

// Resolver resolves a raw location to coordinates. It never fails; ok is
// false when no coordinates are available.
type Resolver interface {
	Resolve(ctx context.Context, rawAddress string) (geocode.Coordinates, bool)
}

// Options configures a Pipeline.
type Options struct {
	SourceURL    string
	Location     *time.Location
	DateLayout   string
	EnrichLimit  int
	Concurrency  int
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Pipeline orchestrates fetch, extraction and bounded enrichment.
type Pipeline struct {
	fetcher   fetcher.Fetcher
	extractor *extract.Extractor
	resolver  Resolver
	opts      Options
}

// New creates a Pipeline. A nil resolver disables enrichment.
func New(f fetcher.Fetcher, ex *extract.Extractor, r Resolver, opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DateLayout == "" {
		opts.DateLayout = "1/2/2006"
	}
	if opts.EnrichLimit <= 0 {
		opts.EnrichLimit = DefaultEnrichLimit
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if ex == nil {
		ex = extract.NewExtractor(extract.DefaultLayout())
	}
	return &Pipeline{fetcher: f, extractor: ex, resolver: r, opts: opts}
}

// EffectiveDate returns dateSpec unchanged when set, otherwise today's date
// in the source's time zone and format.
func (p *Pipeline) EffectiveDate(dateSpec string) string {
	if d := strings.TrimSpace(dateSpec); d != "" {
		return d
	}
	return p.opts.Now().In(p.opts.Location).Format(p.opts.DateLayout)
}

// SourceURL builds the upstream request URL for date.
func (p *Pipeline) SourceURL(date string) (string, error) {
	u, err := url.Parse(p.opts.SourceURL)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: parse source url")
	}
	q := u.Query()
	q.Set("incDate", date)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Extract fetches and parses the incident table for dateSpec without
// geocoding. It returns the effective date alongside the records.
func (p *Pipeline) Extract(ctx context.Context, dateSpec string) ([]model.Incident, string, error) {
	date := p.EffectiveDate(dateSpec)

	src, err := p.SourceURL(date)
	if err != nil {
		return nil, date, &IngestionError{Date: date, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	body, err := p.fetcher.Download(ctx, src)
	if err != nil {
		zap.L().Error("pipeline: upstream fetch failed",
			zap.String("date", date),
			zap.String("url", src),
			zap.Error(err),
		)
		return nil, date, &IngestionError{Date: date, URL: src, Err: err}
	}
	defer body.Close() //nolint:errcheck

	incidents, err := p.extractor.Extract(body)
	if err != nil {
		zap.L().Error("pipeline: extraction failed", zap.String("date", date), zap.Error(err))
		return nil, date, &IngestionError{Date: date, URL: src, Err: err}
	}
	return incidents, date, nil
}

// FetchIncidents returns the incidents for dateSpec with the first
// EnrichLimit records geocoded. Only a failed upstream fetch is an error;
// geocoding problems leave records without coordinates. The caller's
// cancellation is not propagated once the pipeline starts.
func (p *Pipeline) FetchIncidents(ctx context.Context, dateSpec string) (*model.FetchResult, error) {
	ctx = context.WithoutCancel(ctx)
	batchID := uuid.New().String()
	start := time.Now()

	incidents, date, err := p.Extract(ctx, dateSpec)
	if err != nil {
		return nil, err
	}

	var usage batchUsage
	attempted, enriched := p.enrich(geocode.ContextWithRecorder(ctx, &usage), incidents)

	zap.L().Info("pipeline: incidents fetched",
		zap.String("batch_id", batchID),
		zap.String("date", date),
		zap.Int("incidents", len(incidents)),
		zap.Int("attempted", attempted),
		zap.Int("enriched", enriched),
		zap.Int64("cache_hits", usage.hits.Load()),
		zap.Int64("provider_calls", usage.calls.Load()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &model.FetchResult{Incidents: incidents, Date: date}, nil
}

// batchUsage counts resolver events for one FetchIncidents call.
type batchUsage struct {
	hits  atomic.Int64
	calls atomic.Int64
}

func (b *batchUsage) CacheHit()  { b.hits.Add(1) }
func (b *batchUsage) CacheMiss() {}

func (b *batchUsage) ProviderCall(billed, _ bool) {
	if billed {
		b.calls.Add(1)
	}
}

// enrich geocodes incidents[:min(limit, len)] in place. Results are written
// by index so output order is document order at any concurrency.
func (p *Pipeline) enrich(ctx context.Context, incidents []model.Incident) (attempted, enriched int) {
	if p.resolver == nil {
		return 0, 0
	}
	n := min(p.opts.EnrichLimit, len(incidents))
	if n == 0 {
		return 0, 0
	}

	type slot struct {
		c  geocode.Coordinates
		ok bool
	}
	slots := make([]slot, n)

	if p.opts.Concurrency <= 1 {
		for i := 0; i < n; i++ {
			c, ok := p.resolver.Resolve(ctx, incidents[i].Location)
			slots[i] = slot{c: c, ok: ok}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(p.opts.Concurrency)
		for i := 0; i < n; i++ {
			g.Go(func() error {
				c, ok := p.resolver.Resolve(ctx, incidents[i].Location)
				slots[i] = slot{c: c, ok: ok}
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, s := range slots {
		if s.ok {
			incidents[i] = incidents[i].WithCoordinates(s.c.Latitude, s.c.Longitude)
			enriched++
		}
	}
	return n, enriched
}
