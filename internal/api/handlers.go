package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"marketdata/internal/model"
	"marketdata/internal/service"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// parseRange resolves either a period shorthand or explicit start/end
// query params, defaulting to 1y.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	if s, e := q.Get("start"), q.Get("end"); s != "" || e != "" {
		start, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := time.Parse("2006-01-02", e)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, end, nil
	}
	period := q.Get("period")
	if period == "" {
		period = "1y"
	}
	return model.ParsePeriod(period)
}

// GetPrices handles GET /api/v1/prices/{symbol}.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	start, end, err := parseRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	force := r.URL.Query().Get("refresh") == "true"
	points, err := h.svc.FetchHistorical(r.Context(), symbol, start, end, force)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "points": points})
}

// GetLatest handles GET /api/v1/prices/{symbol}/latest.
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	point, err := h.svc.FetchLatest(r.Context(), symbol)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, point)
}

// BatchPrices handles POST /api/v1/prices.
func (h *Handler) BatchPrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols []string `json:"symbols"`
		Period  string   `json:"period"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Symbols) == 0 {
		http.Error(w, "symbols is required", http.StatusBadRequest)
		return
	}
	if req.Period == "" {
		req.Period = "1y"
	}
	start, end, err := model.ParsePeriod(req.Period)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results := h.svc.FetchMultiple(r.Context(), req.Symbols, start, end)
	respondJSON(w, http.StatusOK, results)
}

// GetDistribution handles GET /api/v1/dividends/{symbol}.
func (h *Handler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	force := r.URL.Query().Get("refresh") == "true"
	rec, err := h.svc.FetchDistribution(r.Context(), symbol, force)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// ClearCache handles DELETE /api/v1/cache and /api/v1/cache/{symbol}.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearCache(mux.Vars(r)["symbol"])
	w.WriteHeader(http.StatusNoContent)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.CacheStats())
}

// ProviderStatus handles GET /api/v1/providers.
func (h *Handler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.ProviderStatus())
}

// DeleteHistory handles DELETE /api/v1/history/{symbol}.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if err := h.svc.DeleteHistory(r.Context(), symbol); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.svc.HealthCheck(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, report)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, model.ErrFetchInProgress) {
		status = http.StatusConflict
	} else {
		switch model.KindOf(err) {
		case model.ErrInvalidSymbol, model.ErrInvalidDateRange:
			status = http.StatusBadRequest
		case model.ErrNoData:
			status = http.StatusNotFound
		case model.ErrRateLimited, model.ErrQuotaExceeded:
			status = http.StatusTooManyRequests
		case model.ErrProviderUnavailable:
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
