package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/home-maintenance-service/internal/lifecycle"
	"github.com/kjstillabower/home-maintenance-service/internal/llm"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
	"github.com/kjstillabower/home-maintenance-service/internal/traffic"
	"github.com/kjstillabower/home-maintenance-service/internal/validation"
)

// Error codes returned in the error body.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidZip     = "INVALID_ZIP"
	CodeInvalidCity    = "INVALID_CITY"
	CodeInvalidState   = "INVALID_STATE"
	CodeInvalidYear    = "INVALID_YEAR_BUILT"
	CodeRateLimited    = "RATE_LIMITED"
	CodeLLMDisabled    = "LLM_DISABLED"
	CodeLLMUnavailable = "LLM_UNAVAILABLE"
	CodeCacheDisabled  = "CACHE_DISABLED"
	CodeRequestTimeout = "REQUEST_TIMEOUT"
)

const (
	maxRequestBodyBytes  = 1 << 20
	serviceName          = "home-maintenance-service"
	checkHealthy         = "healthy"
	checkUnhealthy       = "unhealthy"
	checkDisabled        = "disabled"
	statusDegraded       = "degraded"
	statusHealthy        = "healthy"
	defaultDegradedRatio = 0.5
)

// Recommender is the pipeline surface the handlers need. *service.RecommendationService
// implements it.
type Recommender interface {
	Recommend(ctx context.Context, loc models.HomeLocation) models.Recommendation
	Climate(ctx context.Context, zip, city, state string) models.ClimateReport
	Regulations(city, state, zip, county string, yearBuilt int, homeType string) models.RegulationReport
	BuildPrompt(ctx context.Context, inv models.HomeInventory) string
	GenerateTaskPlan(ctx context.Context, inv models.HomeInventory) (models.TaskPlan, error)
	InvalidateZip(ctx context.Context, zip string) bool
	SweepCache(ctx context.Context) int
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	// DegradedWindow and DegradedErrorPct gate the degraded status on weather provider
	// failures; MinSamples keeps a single failure from tripping it.
	DegradedWindow   time.Duration
	DegradedErrorPct int
	MinSamples       int
	StartTime        time.Time
	Version          string

	WeatherEnabled bool
	LLMEnabled     bool
	// CachePing, when set, checks cache reachability.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc              Recommender
	traffic          *traffic.Tracker
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker and healthConfig may be nil.
func NewHandler(svc Recommender, tracker *traffic.Tracker, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:          svc,
		traffic:      tracker,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// PostRecommendations handles POST /recommendations.
func (h *Handler) PostRecommendations(w http.ResponseWriter, r *http.Request) {
	var loc models.HomeLocation
	if !decodeBody(w, r, &loc) {
		return
	}
	city, state, zip, ok := validateLocation(w, r, loc.City, loc.State, loc.ZipCode)
	if !ok {
		return
	}
	loc.City, loc.State, loc.ZipCode = city, state, zip
	if err := validation.Struct(loc); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Recommend(r.Context(), loc))
}

// GetClimate handles GET /climate/{zip}?city=&state=.
func (h *Handler) GetClimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	zipParam := mux.Vars(r)["zip"]
	city, state, zip, ok := validateLocation(w, r, q.Get("city"), q.Get("state"), zipParam)
	if !ok {
		return
	}
	if zip == "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidZip, "zip code is required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Climate(r.Context(), zip, city, state))
}

// GetRegulations handles GET /regulations.
func (h *Handler) GetRegulations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city, state, zip, ok := validateLocation(w, r, q.Get("city"), q.Get("state"), q.Get("zip"))
	if !ok {
		return
	}
	yearBuilt := 0
	if raw := strings.TrimSpace(q.Get("yearBuilt")); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1600 || y > 2200 {
			writeError(w, r, http.StatusBadRequest, CodeInvalidYear, "yearBuilt must be a four-digit year")
			return
		}
		yearBuilt = y
	}
	writeJSON(w, http.StatusOK, h.svc.Regulations(city, state, zip, q.Get("county"), yearBuilt, q.Get("homeType")))
}

// PostTaskPrompt handles POST /tasks/prompt.
func (h *Handler) PostTaskPrompt(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.decodeInventory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": h.svc.BuildPrompt(r.Context(), inv)})
}

// PostTaskGenerate handles POST /tasks/generate.
func (h *Handler) PostTaskGenerate(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.decodeInventory(w, r)
	if !ok {
		return
	}
	plan, err := h.svc.GenerateTaskPlan(r.Context(), inv)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, plan)
	case errors.Is(err, llm.ErrDisabled):
		writeError(w, r, http.StatusServiceUnavailable, CodeLLMDisabled, "Task generation is not configured")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, CodeRequestTimeout, "Task generation timed out")
	default:
		observability.LoggerFromContext(r.Context(), h.logger).Debug("task generation error", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, CodeLLMUnavailable, "Task generation failed")
	}
}

// PostCacheSweep handles POST /cache/sweep.
func (h *Handler) PostCacheSweep(w http.ResponseWriter, r *http.Request) {
	removed := h.svc.SweepCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// DeleteCacheEntry handles DELETE /cache/{zip}.
func (h *Handler) DeleteCacheEntry(w http.ResponseWriter, r *http.Request) {
	zip, err := validation.ValidateZip(mux.Vars(r)["zip"])
	if err != nil || zip == "" {
		writeError(w, r, http.StatusBadRequest, CodeInvalidZip, validation.ErrZipInvalid.Error())
		return
	}
	if !h.svc.InvalidateZip(r.Context(), zip) {
		writeError(w, r, http.StatusServiceUnavailable, CodeCacheDisabled, "No ZIP cache configured")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{
		"weatherHistory": checkDisabled,
		"taskGeneration": checkDisabled,
	}
	version := "dev"
	var uptime time.Duration
	if cfg := h.healthConfig; cfg != nil {
		if cfg.WeatherEnabled {
			checks["weatherHistory"] = checkHealthy
			if result.status == statusDegraded {
				checks["weatherHistory"] = checkUnhealthy
			}
		}
		if cfg.LLMEnabled {
			checks["taskGeneration"] = checkHealthy
		}
		if cfg.CachePing != nil {
			checks["cache"] = checkHealthy
			if err := cfg.CachePing(r.Context()); err != nil {
				checks["cache"] = checkUnhealthy
			}
		}
		if cfg.Version != "" {
			version = cfg.Version
		}
		if !cfg.StartTime.IsZero() {
			uptime = time.Since(cfg.StartTime).Truncate(time.Second)
		}
	}

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   serviceName,
		"version":   version,
		"uptime":    uptime.String(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > degraded > healthy. Degraded only reflects weather provider
// failures; the pipeline still answers from estimates, so it is informational for routing.
func (h *Handler) computeHealthStatus() healthResult {
	switch lifecycle.Status() {
	case lifecycle.StatusShuttingDown:
		return healthResult{lifecycle.StatusShuttingDown, http.StatusServiceUnavailable, "signal"}
	case lifecycle.StatusStarting:
		return healthResult{lifecycle.StatusStarting, http.StatusServiceUnavailable, "startup"}
	}
	if cfg := h.healthConfig; cfg != nil && cfg.WeatherEnabled && h.traffic != nil && cfg.DegradedWindow > 0 {
		ratio := defaultDegradedRatio
		if cfg.DegradedErrorPct > 0 {
			ratio = float64(cfg.DegradedErrorPct) / 100
		}
		if h.traffic.Degraded(cfg.DegradedWindow, ratio, cfg.MinSamples) {
			return healthResult{statusDegraded, http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{statusHealthy, http.StatusOK, ""}
}

func (h *Handler) decodeInventory(w http.ResponseWriter, r *http.Request) (models.HomeInventory, bool) {
	var inv models.HomeInventory
	if !decodeBody(w, r, &inv) {
		return inv, false
	}
	city, state, zip, ok := validateLocation(w, r, inv.Home.City, inv.Home.State, inv.Home.ZipCode)
	if !ok {
		return inv, false
	}
	inv.Home.City, inv.Home.State, inv.Home.ZipCode = city, state, zip
	if err := validation.Struct(inv); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return inv, false
	}
	return inv, true
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// validateLocation writes a 400 for the first invalid location field.
func validateLocation(w http.ResponseWriter, r *http.Request, city, state, zip string) (string, string, string, bool) {
	c, err := validation.ValidateCity(city)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidCity, err.Error())
		return "", "", "", false
	}
	s, err := validation.ValidateState(state)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidState, err.Error())
		return "", "", "", false
	}
	z, err := validation.ValidateZip(zip)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidZip, err.Error())
		return "", "", "", false
	}
	return c, s, z, true
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
