//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

func memcachedAddrs() string {
	if addrs := os.Getenv("MEMCACHED_ADDRS"); addrs != "" {
		return addrs
	}
	return "localhost:11211"
}

// TestMemcachedStore_SetGet_Integration stores an entry with a 90-day expiry and reads it back.
func TestMemcachedStore_SetGet_Integration(t *testing.T) {
	s, err := NewMemcachedStore(memcachedAddrs(), 500*time.Millisecond, 2)
	require.NoError(t, err)
	defer s.Close()
	if err := s.Ping(); err != nil {
		t.Skipf("memcached not reachable: %v", err)
	}

	ctx := context.Background()
	entry := models.ZipCacheEntry{
		ZipCode:     "99901",
		City:        "Ketchikan",
		State:       "AK",
		WeatherData: models.HistoricalWeatherData{AverageRainfall: 141, Source: "test"},
		Source:      "test",
		ExpiresAt:   time.Now().Add(DefaultTTL).UTC().Truncate(time.Second),
	}
	require.NoError(t, s.Set(ctx, entry))
	defer s.Delete(ctx, entry.ZipCode)

	got, ok, err := s.Get(ctx, entry.ZipCode)
	require.NoError(t, err)
	require.True(t, ok, "90-day item must not be dropped by memcached on write")
	assert.Equal(t, entry.City, got.City)
	assert.Equal(t, entry.WeatherData, got.WeatherData)
	assert.True(t, entry.ExpiresAt.Equal(got.ExpiresAt))
}

func TestMemcachedStore_GetMiss_Integration(t *testing.T) {
	s, err := NewMemcachedStore(memcachedAddrs(), 500*time.Millisecond, 2)
	require.NoError(t, err)
	defer s.Close()
	if err := s.Ping(); err != nil {
		t.Skipf("memcached not reachable: %v", err)
	}

	_, ok, err := s.Get(context.Background(), "00000")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, s.Delete(context.Background(), "00000"))
}
