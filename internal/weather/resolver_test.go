package weather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
	"github.com/kjstillabower/home-maintenance-service/internal/client"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

type fakeHistoryClient struct {
	days    []client.DailyObservation
	err     error
	calls   atomic.Int32
	release chan struct{}

	mu      sync.Mutex
	lastReq client.HistoryRequest
}

func (f *fakeHistoryClient) FetchDaily(ctx context.Context, req client.HistoryRequest) ([]client.DailyObservation, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.days, nil
}

func (f *fakeHistoryClient) Source() string { return "fake" }

type countingRecorder struct {
	successes atomic.Int32
	errors    atomic.Int32
}

func (c *countingRecorder) RecordSuccess() { c.successes.Add(1) }
func (c *countingRecorder) RecordError()   { c.errors.Add(1) }

func miamiDays() []client.DailyObservation {
	return []client.DailyObservation{
		{Temp: 80, TempMax: 90, TempMin: 70, Precip: 1.2, WindSpeed: 15, WindGust: 40, Conditions: "Rain"},
		{Temp: 78, TempMax: 85, TempMin: 72, Precip: 0, WindSpeed: 8, Conditions: "Clear"},
	}
}

var now = time.Date(2024, time.June, 15, 14, 30, 0, 0, time.UTC)

func newResolver(t *testing.T, hc client.HistoryClient, opts ...Option) (*Resolver, *cache.ZipCache, *cache.InMemoryStore) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	store := cache.NewInMemoryStore()
	zc := cache.NewZipCache(store, cache.WithClock(clock))
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewResolver(zc, hc, opts...), zc, store
}

func TestResolver_CacheHitSkipsProvider(t *testing.T) {
	hc := &fakeHistoryClient{days: miamiDays()}
	r, zc, _ := newResolver(t, hc)
	ctx := context.Background()
	cached := models.HistoricalWeatherData{AverageRainfall: 61.9, Source: "cached"}
	zc.Set(ctx, "33101", "Miami", "FL", cached, nil, "cached")

	got, ok := r.Resolve(ctx, Query{City: "Miami", State: "FL", ZipCode: "33101-0001"})
	require.True(t, ok)
	assert.Equal(t, cached, got)
	assert.Equal(t, int32(0), hc.calls.Load())
}

func TestResolver_MissFetchesAndWritesThrough(t *testing.T) {
	hc := &fakeHistoryClient{days: miamiDays()}
	rec := &countingRecorder{}
	r, zc, _ := newResolver(t, hc, WithOutcomeRecorder(rec))
	ctx := context.Background()

	got, ok := r.Resolve(ctx, Query{Lat: 25.77, Lon: -80.19, City: "Miami", State: "FL", ZipCode: "33101"})
	require.True(t, ok)
	assert.Equal(t, "fake", got.Source)
	assert.Equal(t, "2014-2024", got.DataYears)
	assert.Equal(t, 90.0, got.MaxTemperature)
	assert.Equal(t, 40.0, got.WindSpeedMax)
	assert.Equal(t, int32(1), rec.successes.Load())

	hc.mu.Lock()
	req := hc.lastReq
	hc.mu.Unlock()
	assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), req.End)
	assert.Equal(t, time.Date(2014, time.June, 15, 0, 0, 0, 0, time.UTC), req.Start)

	entry, ok := zc.Get(ctx, "33101")
	require.True(t, ok)
	assert.Equal(t, got, entry.WeatherData)
	assert.Equal(t, "fake", entry.Source)
	require.NotNil(t, entry.ClimateData)
	assert.Equal(t, models.StormFrequencySevere, entry.ClimateData.StormFrequency)

	_, ok = r.Resolve(ctx, Query{City: "Miami", State: "FL", ZipCode: "33101"})
	require.True(t, ok)
	assert.Equal(t, int32(1), hc.calls.Load(), "second resolve must be served from cache")
}

func TestResolver_ProviderFailureIsAbsent(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantErrRec int32
	}{
		{"auth", client.ErrInvalidAPIKey, 1},
		{"rate limited", client.ErrRateLimited, 1},
		{"network", errors.New("http request failed: dial tcp"), 1},
		{"empty result", client.ErrEmptyResult, 0},
		{"bad location", client.ErrLocationNotFound, 0},
		{"noaa stub", client.ErrNotImplemented, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &countingRecorder{}
			r, _, store := newResolver(t, &fakeHistoryClient{err: tt.err}, WithOutcomeRecorder(rec))

			_, ok := r.Resolve(context.Background(), Query{City: "Miami", State: "FL", ZipCode: "33101"})
			assert.False(t, ok)
			assert.Equal(t, 0, store.Len())
			assert.Equal(t, tt.wantErrRec, rec.errors.Load())
		})
	}
}

func TestResolver_NOAAStubIsAbsent(t *testing.T) {
	r, _, _ := newResolver(t, client.NewNOAAClient(""))
	_, ok := r.Resolve(context.Background(), Query{City: "Miami", State: "FL", ZipCode: "33101"})
	assert.False(t, ok)
}

func TestResolver_NoProviderIsCacheOnly(t *testing.T) {
	r, _, _ := newResolver(t, nil)
	assert.False(t, r.Enabled())
	_, ok := r.Resolve(context.Background(), Query{City: "Miami", State: "FL", ZipCode: "33101"})
	assert.False(t, ok)
}

func TestResolver_NoZipSkipsCache(t *testing.T) {
	hc := &fakeHistoryClient{days: miamiDays()}
	r, _, store := newResolver(t, hc)

	_, ok := r.Resolve(context.Background(), Query{City: "Miami", State: "FL"})
	require.True(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestResolver_NoLocationIsAbsent(t *testing.T) {
	hc := &fakeHistoryClient{days: miamiDays()}
	r, _, _ := newResolver(t, hc)

	_, ok := r.Resolve(context.Background(), Query{})
	assert.False(t, ok)
	assert.Equal(t, int32(0), hc.calls.Load())
}

func TestResolver_CoalescesConcurrentMisses(t *testing.T) {
	hc := &fakeHistoryClient{days: miamiDays(), release: make(chan struct{})}
	r, _, _ := newResolver(t, hc)

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.Resolve(context.Background(), Query{City: "Miami", State: "FL", ZipCode: "33101"})
			results <- ok
		}()
	}

	require.Eventually(t, func() bool { return r.stampede.Active("33101") == callers }, time.Second, time.Millisecond)
	close(hc.release)
	wg.Wait()
	close(results)

	for ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, int32(1), hc.calls.Load())
}

func TestResolver_CallerCancellation(t *testing.T) {
	hc := &fakeHistoryClient{days: miamiDays(), release: make(chan struct{})}
	r, _, _ := newResolver(t, hc, WithFetchTimeout(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := r.Resolve(ctx, Query{City: "Miami", State: "FL", ZipCode: "33101"})
	assert.False(t, ok)
	close(hc.release)
}

func TestResolver_Prefetch(t *testing.T) {
	hc := &fakeHistoryClient{days: miamiDays()}
	r, _, store := newResolver(t, hc)
	ctx := context.Background()
	target := cache.WarmTarget{ZipCode: "33101", City: "Miami", State: "FL"}

	require.NoError(t, r.Prefetch(ctx, target))
	require.NoError(t, r.Prefetch(ctx, target))
	assert.Equal(t, int32(1), hc.calls.Load())
	assert.Equal(t, 1, store.Len())

	failing, _, _ := newResolver(t, &fakeHistoryClient{err: client.ErrUpstreamFailure})
	assert.ErrorIs(t, failing.Prefetch(ctx, target), ErrUnavailable)
}
