package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/home-maintenance-service/internal/observability"
)

// defaultWarmConcurrency bounds upstream calls during a warm run. A ten-year history pull is
// heavy, so warming stays well under the provider's concurrency allowance.
const defaultWarmConcurrency = 4

// WarmTarget identifies a ZIP to prefetch. Lat/Lon are what the history API is queried with.
type WarmTarget struct {
	ZipCode string  `yaml:"zip_code"`
	City    string  `yaml:"city"`
	State   string  `yaml:"state"`
	Lat     float64 `yaml:"lat"`
	Lon     float64 `yaml:"lon"`
}

// Prefetcher is implemented by the weather resolver. Defined here so the cache package
// does not depend on the resolver.
type Prefetcher interface {
	Prefetch(ctx context.Context, target WarmTarget) error
}

// CacheWarmer populates the ZIP cache for a fixed list of locations.
type CacheWarmer struct {
	fetcher     Prefetcher
	logger      *zap.Logger
	clock       clockwork.Clock
	concurrency int
}

// NewCacheWarmer creates a CacheWarmer. concurrency <= 0 uses the default.
func NewCacheWarmer(fetcher Prefetcher, logger *zap.Logger, clock clockwork.Clock, concurrency int) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if concurrency <= 0 {
		concurrency = defaultWarmConcurrency
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, clock: clock, concurrency: concurrency}
}

// Warm prefetches every target with bounded concurrency. One failing target does not stop
// the others; all failures are returned joined.
func (w *CacheWarmer) Warm(ctx context.Context, targets []WarmTarget) error {
	start := w.clock.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming zip cache", zap.Int("locations", len(targets)))

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := w.fetcher.Prefetch(gctx, target); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", target.ZipCode, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := w.clock.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("zip cache warming complete",
		zap.Int("locations", len(targets)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// WarmPeriodic refreshes targets every interval until ctx is done. It does not warm on
// entry; callers run Warm first when they need a primed cache.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, targets []WarmTarget, interval time.Duration) error {
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := w.Warm(ctx, targets); err != nil {
				w.logger.Warn("periodic zip cache warm failed", zap.Error(err))
			}
		}
	}
}
