package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/home-maintenance-service/internal/observability"
	"github.com/kjstillabower/home-maintenance-service/internal/traffic"
)

// RouterConfig configures NewRouter. A nil Limiter disables rate limiting; a zero
// RequestTimeout disables the API deadline.
type RouterConfig struct {
	Limiter        *rate.Limiter
	Traffic        *traffic.Tracker
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter wires the API routes. /health and /metrics bypass rate limiting and the
// request deadline.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(InFlightMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, cfg.Traffic))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/recommendations", h.PostRecommendations).Methods("POST")
	api.HandleFunc("/climate/{zip}", h.GetClimate).Methods("GET")
	api.HandleFunc("/regulations", h.GetRegulations).Methods("GET")
	api.HandleFunc("/tasks/prompt", h.PostTaskPrompt).Methods("POST")
	api.HandleFunc("/tasks/generate", h.PostTaskGenerate).Methods("POST")
	api.HandleFunc("/cache/sweep", h.PostCacheSweep).Methods("POST")
	api.HandleFunc("/cache/{zip}", h.DeleteCacheEntry).Methods("DELETE")
	return router
}
