package cache

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
)

// DefaultTTL is how long a resolved ZIP entry stays fresh.
const DefaultTTL = 90 * 24 * time.Hour

const cacheType = "zip"

// ZipCache is the fail-soft ZIP-keyed cache in front of a Store. No method returns an
// error: store failures are logged and counted, reads degrade to a miss, writes are dropped.
type ZipCache struct {
	store  Store
	ttl    time.Duration
	clock  clockwork.Clock
	logger *zap.Logger
}

// Option configures a ZipCache.
type Option func(*ZipCache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(z *ZipCache) {
		if ttl > 0 {
			z.ttl = ttl
		}
	}
}

// WithClock sets the time source used for expiry.
func WithClock(c clockwork.Clock) Option {
	return func(z *ZipCache) {
		if c != nil {
			z.clock = c
		}
	}
}

// WithLogger sets the logger used when no request-scoped logger is in context.
func WithLogger(l *zap.Logger) Option {
	return func(z *ZipCache) {
		if l != nil {
			z.logger = l
		}
	}
}

// NewZipCache wraps store with ZIP normalization and TTL handling.
func NewZipCache(store Store, opts ...Option) *ZipCache {
	z := &ZipCache{
		store:  store,
		ttl:    DefaultTTL,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// NormalizeZip trims input, drops every non-alphanumeric rune, and keeps the first five
// characters. Inputs that normalize to the same string share one cache entry.
func NormalizeZip(zip string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(zip) {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(r)
		if b.Len() == 5 {
			break
		}
	}
	return b.String()
}

// Get returns the fresh entry for zip. An expired entry is reported as a miss and
// deleted from the store. Store errors are reported as a miss.
func (z *ZipCache) Get(ctx context.Context, zip string) (models.ZipCacheEntry, bool) {
	key := NormalizeZip(zip)
	if key == "" {
		return models.ZipCacheEntry{}, false
	}
	logger := observability.LoggerFromContext(ctx, z.logger)

	start := time.Now()
	entry, ok, err := z.store.Get(ctx, key)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(duration)
		observability.CacheMissesTotal.WithLabelValues(cacheType).Inc()
		logger.Warn("zip cache get failed", zap.String("zip", key), zap.Error(err))
		return models.ZipCacheEntry{}, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(duration)
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(cacheType).Inc()
		logger.Debug("zip cache miss", zap.String("zip", key))
		return models.ZipCacheEntry{}, false
	}

	if entry.Expired(z.clock.Now()) {
		observability.CacheMissesTotal.WithLabelValues(cacheType).Inc()
		if delErr := z.store.Delete(ctx, key); delErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("delete", categorizeCacheError(delErr)).Inc()
			logger.Warn("zip cache expired delete failed", zap.String("zip", key), zap.Error(delErr))
		} else {
			observability.CacheEvictionsTotal.WithLabelValues("expired").Inc()
		}
		logger.Debug("zip cache entry expired", zap.String("zip", key), zap.Time("expires_at", entry.ExpiresAt))
		return models.ZipCacheEntry{}, false
	}

	observability.CacheHitsTotal.WithLabelValues(cacheType).Inc()
	logger.Debug("zip cache hit", zap.String("zip", key), zap.String("source", entry.Source))
	return entry, true
}

// Set writes (upserts) the entry for zip with ExpiresAt = now + TTL. Failures are logged only.
func (z *ZipCache) Set(ctx context.Context, zip, city, state string, weather models.HistoricalWeatherData, climate *models.ClimateData, source string) {
	key := NormalizeZip(zip)
	if key == "" {
		return
	}
	logger := observability.LoggerFromContext(ctx, z.logger)

	entry := models.ZipCacheEntry{
		ZipCode:     key,
		City:        city,
		State:       state,
		WeatherData: weather,
		Source:      source,
		ExpiresAt:   z.clock.Now().Add(z.ttl),
	}
	if climate != nil {
		c := *climate
		entry.ClimateData = &c
	}

	start := time.Now()
	if err := z.store.Set(ctx, entry); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(start).Seconds())
		logger.Warn("zip cache set failed", zap.String("zip", key), zap.Error(err))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(start).Seconds())
}

// Invalidate removes the entry for zip, if any.
func (z *ZipCache) Invalidate(ctx context.Context, zip string) {
	key := NormalizeZip(zip)
	if key == "" {
		return
	}
	if err := z.store.Delete(ctx, key); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("delete", categorizeCacheError(err)).Inc()
		observability.LoggerFromContext(ctx, z.logger).Warn("zip cache invalidate failed", zap.String("zip", key), zap.Error(err))
		return
	}
	observability.CacheEvictionsTotal.WithLabelValues("invalidated").Inc()
}

// SweepExpired deletes all expired entries and returns how many were removed (0 on error).
func (z *ZipCache) SweepExpired(ctx context.Context) int {
	logger := observability.LoggerFromContext(ctx, z.logger)
	start := time.Now()
	n, err := z.store.SweepExpired(ctx, z.clock.Now())
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("sweep", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("sweep", "error").Observe(time.Since(start).Seconds())
		logger.Warn("zip cache sweep failed", zap.Error(err))
		return 0
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("sweep", "success").Observe(time.Since(start).Seconds())
	observability.CacheEvictionsTotal.WithLabelValues("sweep").Add(float64(n))
	logger.Info("zip cache sweep complete", zap.Int("removed", n))
	return n
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") || strings.Contains(errStr, "dial") {
		return "connection"
	}
	if strings.Contains(errStr, "unmarshal") || strings.Contains(errStr, "decode") {
		return "decode"
	}
	return "unknown"
}
