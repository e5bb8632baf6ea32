//go:build integration
// +build integration

// Package testhelpers builds real dependencies for integration tests.
package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
	"github.com/kjstillabower/home-maintenance-service/internal/client"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
	"github.com/kjstillabower/home-maintenance-service/internal/service"
	"github.com/kjstillabower/home-maintenance-service/internal/weather"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory", "memcached" or "postgres"
	MemcachedAddr string
	DatabaseURL   string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services"
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
	}
}

// SetupIntegrationStore returns the configured cache store, falling back to in-memory
// when the backend is unreachable.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) cache.Store {
	t.Helper()
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached store at %s", cfg.MemcachedAddr)
			return mc
		}
		t.Logf("Memcached not available (%v), using in-memory store", err)
	case "postgres":
		if cfg.DatabaseURL != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			pg, err := cache.NewPostgresStore(ctx, cfg.DatabaseURL)
			if err == nil && pg.EnsureSchema(ctx) == nil {
				t.Cleanup(pg.Close)
				t.Log("Using Postgres store")
				return pg
			}
			t.Logf("Postgres not available (%v), using in-memory store", err)
		}
	}
	return cache.NewInMemoryStore()
}

// SetupIntegrationService creates a recommendation service backed by the live weather API.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.RecommendationService, *cache.ZipCache) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	hc := SetupIntegrationClient(t, cfg)
	zc := cache.NewZipCache(SetupIntegrationStore(t, cfg), cache.WithLogger(logger))
	resolver := weather.NewResolver(zc, hc, weather.WithLogger(logger))
	svc := service.NewRecommendationService(
		service.WithCache(zc),
		service.WithResolver(resolver),
		service.WithLogger(logger),
	)
	return svc, zc
}

// SetupIntegrationClient creates a weather history client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.VisualCrossingClient {
	t.Helper()
	c, err := client.NewVisualCrossingClient(client.VisualCrossingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.APIURL,
		Timeout: 60 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewVisualCrossingClient() error = %v", err)
	}
	return c
}
