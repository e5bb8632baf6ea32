package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
	"github.com/kjstillabower/home-maintenance-service/internal/circuitbreaker"
	"github.com/kjstillabower/home-maintenance-service/internal/client"
	"github.com/kjstillabower/home-maintenance-service/internal/config"
	"github.com/kjstillabower/home-maintenance-service/internal/llm"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
	"github.com/kjstillabower/home-maintenance-service/internal/publish"
	"github.com/kjstillabower/home-maintenance-service/internal/service"
	"github.com/kjstillabower/home-maintenance-service/internal/traffic"
	"github.com/kjstillabower/home-maintenance-service/internal/weather"
)

// app holds the wired pipeline and everything that needs closing.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	svc       *service.RecommendationService
	resolver  *weather.Resolver
	generator *llm.TaskGenerator
	traffic   *traffic.Tracker
	cachePing func(ctx context.Context) error
	keyCheck  keyValidator
	closers   []func() error
}

// keyValidator is implemented by history clients that can confirm their credentials.
type keyValidator interface {
	ValidateAPIKey(ctx context.Context) error
}

// newApp wires the pipeline from cfg. Missing optional credentials disable their component
// instead of failing.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, traffic: traffic.New(nil)}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	zc := cache.NewZipCache(store, cache.WithTTL(cfg.CacheTTL), cache.WithLogger(logger))

	hc := a.historyClient()
	a.resolver = weather.NewResolver(zc, hc,
		weather.WithLogger(logger),
		weather.WithOutcomeRecorder(a.traffic),
		weather.WithFetchTimeout(cfg.WeatherFetchTimeout),
	)

	var gen *llm.TaskGenerator
	if cfg.GeminiAPIKey != "" {
		gc, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		a.closers = append(a.closers, gc.Close)
		gen = llm.NewTaskGenerator(gc, nil, logger, cfg.LLMTimeout)
		logger.Info("task generation enabled", zap.String("model", cfg.GeminiModel))
	} else {
		logger.Info("task generation disabled, GEMINI_API_KEY not set")
	}
	a.generator = gen

	var pub publish.Publisher = publish.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := publish.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaWriteTimeout, logger)
		a.closers = append(a.closers, kp.Close)
		pub = kp
		logger.Info("task publishing enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	a.svc = service.NewRecommendationService(
		service.WithCache(zc),
		service.WithResolver(a.resolver),
		service.WithTaskGenerator(gen),
		service.WithPublisher(pub),
		service.WithLogger(logger),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (cache.Store, error) {
	cfg := a.cfg
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached store: %w", err)
		}
		a.closers = append(a.closers, mc.Close)
		a.cachePing = func(context.Context) error { return mc.Ping() }
		a.logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, nil
	case config.BackendPostgres:
		pg, err := cache.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		a.cachePing = pg.Ping
		a.logger.Info("cache backend: postgres")
		return pg, nil
	default:
		a.logger.Info("cache backend: in_memory")
		return cache.NewInMemoryStore(), nil
	}
}

// historyClient returns nil when the provider has no credentials.
func (a *app) historyClient() client.HistoryClient {
	cfg := a.cfg
	if cfg.WeatherProvider == config.ProviderNOAA {
		a.logger.Info("weather history provider: noaa")
		return client.NewNOAAClient(cfg.NOAAToken)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        "weather_api",
		IsFailure:        client.IsUpstreamFailure,
		OnStateChange: func(component string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
			a.logger.Warn("circuit breaker transition",
				zap.String("component", component),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	vc, err := client.NewVisualCrossingClient(client.VisualCrossingConfig{
		APIKey:         cfg.WeatherAPIKey,
		BaseURL:        cfg.WeatherAPIURL,
		Timeout:        cfg.WeatherAPITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Breaker:        breaker,
	})
	if err != nil {
		if errors.Is(err, client.ErrInvalidAPIKey) {
			a.logger.Info("weather history disabled, WEATHER_API_KEY not set; using cache and state estimates")
		} else {
			a.logger.Warn("weather history disabled", zap.Error(err))
		}
		return nil
	}
	observability.CircuitBreakerState.WithLabelValues("weather_api").Set(0)
	a.keyCheck = vc
	return vc
}

// verifyWeatherKey asks the provider to accept the configured key once. It reports false
// only when the provider rejected the key; other failures are logged and treated as
// transient.
func (a *app) verifyWeatherKey(ctx context.Context) bool {
	if a.keyCheck == nil {
		return true
	}
	err := a.keyCheck.ValidateAPIKey(ctx)
	switch {
	case err == nil:
		a.logger.Info("weather API key accepted")
		return true
	case errors.Is(err, client.ErrInvalidAPIKey):
		a.logger.Error("weather API key rejected; history lookups will fail until it is fixed", zap.Error(err))
		return false
	default:
		a.logger.Warn("weather API key check failed", zap.Error(err))
		return true
	}
}

// Close releases everything newApp opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}

func loadApp(ctx context.Context, opts *rootOptions) (*app, error) {
	logger, err := observability.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	cfg, err := config.LoadFrom(opts.root)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return newApp(initCtx, cfg, logger)
}
