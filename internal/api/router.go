// Package api serves the incident feed to the map client.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/fire-incidents/internal/cost"
	"github.com/sells-group/fire-incidents/internal/model"
	"github.com/sells-group/fire-incidents/internal/resilience"
)

// IncidentService is the slice of the ingestion pipeline the API needs.
type IncidentService interface {
	FetchIncidents(ctx context.Context, dateSpec string) (*model.FetchResult, error)
	Extract(ctx context.Context, dateSpec string) ([]model.Incident, string, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Meter          *cost.Meter
	Calculator     *cost.Calculator
	// Breakers are reported by name on /health.
	Breakers map[string]*resilience.CircuitBreaker
}

// NewRouter builds the HTTP handler for the service.
func NewRouter(svc IncidentService, opts Options) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	h := &handler{svc: svc, meter: opts.Meter, calc: opts.Calculator, breakers: opts.Breakers}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Get("/stats", h.stats)
	r.Get("/incidents", h.incidents)
	r.Get("/incidents/facets", h.facets)
	r.Get("/incidents/geojson", h.geojson)

	return r
}

// accessLog logs one line per request through the global zap logger.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
