package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/fire-incidents/internal/cost"
	"github.com/sells-group/fire-incidents/internal/pipeline"
	"github.com/sells-group/fire-incidents/internal/resilience"
)

const fetchFailedMessage = "Failed to fetch incidents"

type handler struct {
	svc      IncidentService
	meter    *cost.Meter
	calc     *cost.Calculator
	breakers map[string]*resilience.CircuitBreaker
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// health always answers 200: an open breaker degrades geocoding but the
// incident feed is still served.
func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if len(h.breakers) > 0 {
		resp.Breakers = make(map[string]string, len(h.breakers))
		for name, cb := range h.breakers {
			resp.Breakers[name] = cb.State().String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// incidents serves GET /incidents?date=&type=&level=&q=. Filters apply
// after enrichment so the geocoded prefix is chosen from the full table.
func (h *handler) incidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.FetchIncidents(r.Context(), q.Get("date"))
	if err != nil {
		zap.L().Error("api: fetch incidents", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fetchFailedMessage})
		return
	}

	filter := pipeline.Filter{Type: q.Get("type"), Level: q.Get("level"), Search: q.Get("q")}
	result.Incidents = filter.Apply(result.Incidents)
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) geojson(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.FetchIncidents(r.Context(), q.Get("date"))
	if err != nil {
		zap.L().Error("api: fetch incidents", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fetchFailedMessage})
		return
	}

	filter := pipeline.Filter{Type: q.Get("type"), Level: q.Get("level"), Search: q.Get("q")}
	fc := GeoJSON(filter.Apply(result.Incidents))

	data, err := fc.MarshalJSON()
	if err != nil {
		zap.L().Error("api: encode geojson", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to encode incidents"})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) facets(w http.ResponseWriter, r *http.Request) {
	incidents, date, err := h.svc.Extract(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		zap.L().Error("api: fetch facets", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fetchFailedMessage})
		return
	}
	writeJSON(w, http.StatusOK, pipeline.BuildFacets(date, incidents))
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	if h.meter == nil {
		writeJSON(w, http.StatusOK, cost.Usage{})
		return
	}
	writeJSON(w, http.StatusOK, h.meter.Snapshot(h.calc))
}
