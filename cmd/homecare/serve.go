package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
	httphandler "github.com/kjstillabower/home-maintenance-service/internal/http"
	"github.com/kjstillabower/home-maintenance-service/internal/lifecycle"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const inFlightCheckInterval = 50 * time.Millisecond

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger
	defer func() { _ = logger.Sync() }()

	start := time.Now()
	observability.RegisterUptimeGauge(start)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		MinSamples:       cfg.DegradedMinSamples,
		StartTime:        start,
		Version:          version,
		WeatherEnabled:   a.resolver.Enabled(),
		LLMEnabled:       a.generator.Enabled(),
		CachePing:        a.cachePing,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(a.svc, a.traffic, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		Traffic:        a.traffic,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bgCtx, bgCancel := context.WithCancel(sigCtx)
	defer bgCancel()
	go warmAndMarkReady(bgCtx, a)

	select {
	case <-sigCtx.Done():
	case err, ok := <-serveErr:
		if ok && err != nil {
			return err
		}
	}
	stop()
	bgCancel()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests",
		zap.Int64("count", inFlight),
		zap.Int64("generating", httphandler.InFlightGenerating()))
	observability.RecordShutdownInFlight(inFlight)
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// warmAndMarkReady checks the weather key, primes the cache for configured targets, waits
// out the ready delay, then flips readiness. Periodic warming runs until ctx is cancelled.
func warmAndMarkReady(ctx context.Context, a *app) {
	cfg, logger := a.cfg, a.logger

	keyOK := a.verifyWeatherKey(ctx)
	if len(cfg.WarmTargets) > 0 && a.resolver.Enabled() && keyOK {
		warmer := cache.NewCacheWarmer(a.resolver, logger, nil, cfg.WarmConcurrency)
		warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmTargets); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(ctx, cfg.WarmTargets, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	if cfg.ReadyDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.ReadyDelay):
		}
	}
	lifecycle.SetReady(true)
	logger.Info("service ready")
}
