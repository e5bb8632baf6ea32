// Package weather resolves decade-scale weather history for a home location, consulting
// the ZIP cache before the history provider.
package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
	"github.com/kjstillabower/home-maintenance-service/internal/client"
	"github.com/kjstillabower/home-maintenance-service/internal/climate"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
)

// LookbackYears is the history window ending at the current date.
const LookbackYears = 10

const defaultFetchTimeout = 60 * time.Second

// ErrUnavailable is returned by Prefetch when history could not be resolved.
var ErrUnavailable = errors.New("weather history unavailable")

// Query identifies the location to resolve. ZipCode is optional; without it the cache is
// bypassed.
type Query struct {
	Lat     float64
	Lon     float64
	City    string
	State   string
	ZipCode string
}

// OutcomeRecorder receives provider call outcomes. *traffic.Tracker implements it.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// Resolver implements cache-then-provider resolution. Either dependency may be nil: no
// cache means every call goes upstream, no client means cache-only.
type Resolver struct {
	cache        *cache.ZipCache
	client       client.HistoryClient
	clock        clockwork.Clock
	logger       *zap.Logger
	outcomes     OutcomeRecorder
	fetchTimeout time.Duration
	group        singleflight.Group
	stampede     *stampedeTracker
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock that anchors the lookback window.
func WithClock(c clockwork.Clock) Option {
	return func(r *Resolver) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the fallback logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOutcomeRecorder reports provider successes and failures to rec.
func WithOutcomeRecorder(rec OutcomeRecorder) Option {
	return func(r *Resolver) { r.outcomes = rec }
}

// WithFetchTimeout bounds one provider fetch, which is shared by coalesced callers.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(zc *cache.ZipCache, hc client.HistoryClient, opts ...Option) *Resolver {
	r := &Resolver{
		cache:        zc,
		client:       hc,
		clock:        clockwork.NewRealClock(),
		logger:       zap.NewNop(),
		fetchTimeout: defaultFetchTimeout,
		stampede:     newStampedeTracker(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether a history provider is configured.
func (r *Resolver) Enabled() bool {
	return r.client != nil
}

// Resolve returns weather history for q, or false when neither the cache nor the provider
// can supply it. It never returns an error.
func (r *Resolver) Resolve(ctx context.Context, q Query) (models.HistoricalWeatherData, bool) {
	logger := observability.LoggerFromContext(ctx, r.logger)
	zip := cache.NormalizeZip(q.ZipCode)

	if zip != "" && r.cache != nil {
		if entry, ok := r.cache.Get(ctx, zip); ok {
			observability.WeatherResolutionsTotal.WithLabelValues("cache").Inc()
			return entry.WeatherData, true
		}
	}

	if r.client == nil {
		observability.WeatherResolutionsTotal.WithLabelValues("absent").Inc()
		logger.Debug("weather history disabled, no provider configured", zap.String("zip", zip))
		return models.HistoricalWeatherData{}, false
	}

	key := zip
	if key == "" {
		key = strings.ToLower(client.HistoryRequest{Lat: q.Lat, Lon: q.Lon, City: q.City, State: q.State}.Location())
	}
	if key == "" {
		observability.WeatherResolutionsTotal.WithLabelValues("absent").Inc()
		return models.HistoricalWeatherData{}, false
	}

	if n := r.stampede.Miss(key); n > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
		logger.Debug("concurrent weather miss", zap.String("key", key), zap.Int("concurrent", n))
	}
	defer r.stampede.Done(key)

	ch := r.group.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter, so it must outlive any single caller's cancellation.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		return r.fetch(fetchCtx, q, zip)
	})

	select {
	case <-ctx.Done():
		observability.WeatherResolutionsTotal.WithLabelValues("absent").Inc()
		return models.HistoricalWeatherData{}, false
	case res := <-ch:
		if res.Err != nil {
			observability.WeatherResolutionsTotal.WithLabelValues("absent").Inc()
			logger.Warn("weather history unavailable",
				zap.String("zip", zip),
				zap.String("category", string(client.CategorizeError(res.Err))),
				zap.Error(res.Err),
			)
			return models.HistoricalWeatherData{}, false
		}
		observability.WeatherResolutionsTotal.WithLabelValues("api").Inc()
		return res.Val.(models.HistoricalWeatherData), true
	}
}

func (r *Resolver) fetch(ctx context.Context, q Query, zip string) (models.HistoricalWeatherData, error) {
	end := r.clock.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(-LookbackYears, 0, 0)

	days, err := r.client.FetchDaily(ctx, client.HistoryRequest{
		Lat:   q.Lat,
		Lon:   q.Lon,
		City:  q.City,
		State: q.State,
		Start: start,
		End:   end,
	})
	if err != nil {
		if client.IsUpstreamFailure(err) {
			r.recordError()
		}
		return models.HistoricalWeatherData{}, err
	}
	r.recordSuccess()

	data, ok := Aggregate(days, start, end, r.client.Source())
	if !ok {
		return models.HistoricalWeatherData{}, client.ErrEmptyResult
	}

	if zip != "" && r.cache != nil {
		est := climate.Estimate(q.City, q.State, zip)
		r.cache.Set(ctx, zip, q.City, q.State, data, &est, r.client.Source())
	}
	return data, nil
}

// Prefetch implements cache.Prefetcher. A fresh cache entry is left untouched.
func (r *Resolver) Prefetch(ctx context.Context, t cache.WarmTarget) error {
	if r.cache != nil {
		if _, ok := r.cache.Get(ctx, t.ZipCode); ok {
			return nil
		}
	}
	if _, ok := r.Resolve(ctx, Query{Lat: t.Lat, Lon: t.Lon, City: t.City, State: t.State, ZipCode: t.ZipCode}); !ok {
		return fmt.Errorf("%w for %s", ErrUnavailable, t.ZipCode)
	}
	return nil
}

func (r *Resolver) recordSuccess() {
	if r.outcomes != nil {
		r.outcomes.RecordSuccess()
	}
}

func (r *Resolver) recordError() {
	if r.outcomes != nil {
		r.outcomes.RecordError()
	}
}
