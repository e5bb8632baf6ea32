package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Weather-history API call rate by outcome. Watch for: auth or rate_limited spikes.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Weather-history API latency. A ten-year window is a large payload; expect seconds, not ms.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts for weather API calls. High retries = unstable upstream.
	WeatherAPIRetriesTotal prometheus.Counter

	// Weather API errors by category (timeout, invalid_api_key, rate_limited, ...).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Weather resolutions by source: cache, api, absent.
	WeatherResolutionsTotal *prometheus.CounterVec

	// ZIP cache hits and misses. Hit rate = hits/(hits+misses).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// ZIP cache store errors by operation and category. Errors never reach callers.
	CacheErrorsTotal *prometheus.CounterVec

	// ZIP cache operation latency by operation and status.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Entries removed by lazy expiry on read, explicit sweep, or invalidation.
	CacheEvictionsTotal *prometheus.CounterVec

	// Concurrent misses for the same ZIP inside this process.
	CacheStampedeDetectedTotal prometheus.Counter

	// Cache warming.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Storm classifications by level and method (weather, state, default).
	StormClassificationsTotal *prometheus.CounterVec

	// Compliance tasks generated by priority.
	ComplianceTasksGeneratedTotal *prometheus.CounterVec

	// Task-generation model calls by status; dropped invalid tasks.
	LLMRequestsTotal      *prometheus.CounterVec
	LLMTasksDroppedTotal  prometheus.Counter
	LLMRequestDurationSec prometheus.Histogram

	// Task batches handed to the task store by status.
	TaskPublishTotal *prometheus.CounterVec

	// Rate limit denials (429).
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state (0 closed, 1 open, 2 half_open) and transitions.
	CircuitBreakerState       *prometheus.GaugeVec
	CircuitBreakerTransitions *prometheus.CounterVec

	// In-flight requests observed when shutdown began.
	ShutdownInFlightRequests prometheus.Gauge

	uptimeOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather-history API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather-history API latency in seconds (per request)",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Weather API errors by category",
		},
		[]string{"category"},
	)
	WeatherResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherResolutionsTotal",
			Help: "Historical weather resolutions by source (cache, api, absent)",
		},
		[]string{"source"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses (including expired entries)",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache store errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "status"},
	)
	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Cache entries removed by reason (expired, sweep, invalidated)",
		},
		[]string{"reason"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses for the same ZIP within this process",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed ZIP",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
	StormClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stormClassificationsTotal",
			Help: "Storm frequency classifications by level and method",
		},
		[]string{"level", "method"},
	)
	ComplianceTasksGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complianceTasksGeneratedTotal",
			Help: "Compliance tasks generated by priority",
		},
		[]string{"priority"},
	)
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmRequestsTotal",
			Help: "Task-generation model calls by status",
		},
		[]string{"status"},
	)
	LLMTasksDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llmTasksDroppedTotal",
			Help: "Model-generated tasks dropped by validation",
		},
	)
	LLMRequestDurationSec = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llmRequestDurationSeconds",
			Help:    "Task-generation model latency in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80},
		},
	)
	TaskPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskPublishTotal",
			Help: "Task batches handed to the task store by status",
		},
		[]string{"status"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half_open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests when graceful shutdown began",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal, WeatherAPIErrorsTotal,
		WeatherResolutionsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheEvictionsTotal, CacheStampedeDetectedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		StormClassificationsTotal, ComplianceTasksGeneratedTotal,
		LLMRequestsTotal, LLMTasksDroppedTotal, LLMRequestDurationSec,
		TaskPublishTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitions,
		ShutdownInFlightRequests,
	)
}

// RegisterUptimeGauge exposes process uptime since start. Safe to call more than once.
func RegisterUptimeGauge(start time.Time) {
	uptimeOnce.Do(func() {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "uptimeSeconds",
				Help: "Seconds since the service started",
			},
			func() float64 { return time.Since(start).Seconds() },
		))
	})
}

// RecordCircuitBreakerTransition updates the state gauge and transition counter.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitions.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// RecordShutdownInFlight records how many requests were in flight when shutdown began.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlightRequests.Set(float64(n))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
