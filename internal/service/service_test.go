package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
	"github.com/kjstillabower/home-maintenance-service/internal/client"
	"github.com/kjstillabower/home-maintenance-service/internal/llm"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/publish"
	"github.com/kjstillabower/home-maintenance-service/internal/storm"
	"github.com/kjstillabower/home-maintenance-service/internal/weather"
)

func TestMain(m *testing.M) {
	// opencensus, pulled in by the Gemini client, starts its stats worker in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var now = time.Date(2024, time.June, 15, 14, 30, 0, 0, time.UTC)

type stubHistory struct {
	days []client.DailyObservation
	err  error
}

func (s *stubHistory) FetchDaily(ctx context.Context, req client.HistoryRequest) ([]client.DailyObservation, error) {
	return s.days, s.err
}

func (s *stubHistory) Source() string { return "stub" }

type recordingPublisher struct {
	mu      sync.Mutex
	batches []publish.Batch
}

func (p *recordingPublisher) Publish(ctx context.Context, b publish.Batch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
}

func (p *recordingPublisher) Close() error { return nil }

type stubModel struct {
	response string
	err      error
}

func (m *stubModel) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return m.response, m.err
}

func (m *stubModel) Close() error { return nil }

func stormyDays() []client.DailyObservation {
	return []client.DailyObservation{
		{Temp: 80, TempMax: 90, TempMin: 70, Precip: 1.2, WindSpeed: 15, WindGust: 40, Conditions: "Rain"},
		{Temp: 78, TempMax: 85, TempMin: 72, Precip: 0, WindSpeed: 8, Conditions: "Clear"},
	}
}

func newService(t *testing.T, hc client.HistoryClient, opts ...Option) (*RecommendationService, *cache.ZipCache, *recordingPublisher) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	zc := cache.NewZipCache(cache.NewInMemoryStore(), cache.WithClock(clock))
	resolver := weather.NewResolver(zc, hc, weather.WithClock(clock))
	pub := &recordingPublisher{}
	base := []Option{WithCache(zc), WithResolver(resolver), WithPublisher(pub), WithClock(clock)}
	return NewRecommendationService(append(base, opts...)...), zc, pub
}

func miamiHome() models.HomeLocation {
	return models.HomeLocation{
		HomeID:    "6f1c2a34-3f7e-4a8b-9c1d-2e3f4a5b6c7d",
		City:      "Miami",
		State:     "fl",
		ZipCode:   " 33101 ",
		YearBuilt: 1965,
		HomeType:  "single-family",
	}
}

func TestRecommend_WithWeatherHistory(t *testing.T) {
	svc, zc, pub := newService(t, &stubHistory{days: stormyDays()})

	rec := svc.Recommend(context.Background(), miamiHome())

	require.NotNil(t, rec.Weather)
	assert.Equal(t, storm.MethodWeather, rec.StormMethod)
	assert.Equal(t, models.StormFrequencyHigh, rec.StormFrequency)
	assert.Equal(t, "33101", rec.ZipCode)
	assert.Equal(t, "FL", rec.State)
	assert.Equal(t, models.StormFrequencySevere, rec.Climate.StormFrequency, "climate keeps the state estimate")
	assert.True(t, rec.Climate.HurricaneRisk)
	assert.NotEmpty(t, rec.Regulations)
	assert.LessOrEqual(t, len(rec.Applicable), len(rec.Regulations))
	assert.NotEmpty(t, rec.ComplianceTasks)

	_, cached := zc.Get(context.Background(), "33101")
	assert.True(t, cached, "resolved history is written through to the cache")

	require.Len(t, pub.batches, 1)
	assert.Equal(t, "33101", pub.batches[0].ZipCode)
	assert.Equal(t, miamiHome().HomeID, pub.batches[0].HomeID)
	assert.Len(t, pub.batches[0].ComplianceTasks, len(rec.ComplianceTasks))
}

func TestRecommend_FallsBackToStateEstimate(t *testing.T) {
	svc, _, _ := newService(t, &stubHistory{err: client.ErrUpstreamFailure})

	rec := svc.Recommend(context.Background(), miamiHome())

	assert.Nil(t, rec.Weather)
	assert.Equal(t, storm.MethodState, rec.StormMethod)
	assert.Equal(t, models.StormFrequencySevere, rec.StormFrequency)
}

func TestRecommend_NoProviderConfigured(t *testing.T) {
	svc, _, _ := newService(t, nil)
	rec := svc.Recommend(context.Background(), miamiHome())
	assert.Nil(t, rec.Weather)
	assert.Equal(t, storm.MethodState, rec.StormMethod)
}

func TestRecommend_MissingLocationYieldsNoRegulations(t *testing.T) {
	svc, _, _ := newService(t, nil)

	rec := svc.Recommend(context.Background(), models.HomeLocation{State: "TX"})

	assert.Empty(t, rec.Regulations)
	assert.Empty(t, rec.ComplianceTasks)
	assert.Equal(t, models.StormFrequencyHigh, rec.StormFrequency)
}

func TestRecommend_DueDatesAnchoredToClock(t *testing.T) {
	svc, _, _ := newService(t, nil)
	rec := svc.Recommend(context.Background(), miamiHome())

	midnight := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	for _, task := range rec.ComplianceTasks {
		assert.False(t, task.NextDueDate.Before(midnight), task.Name)
	}
	assert.Equal(t, now, rec.GeneratedAt)
}

func TestRegulations_FiltersByHome(t *testing.T) {
	svc, _, _ := newService(t, nil)

	old := svc.Regulations("Miami", "FL", "33101", "", 1965, "single-family")
	newer := svc.Regulations("Miami", "FL", "33101", "", 2010, "single-family")

	assert.Equal(t, len(old.Regulations), len(newer.Regulations))
	assert.Greater(t, len(old.Applicable), len(newer.Applicable), "pre-1978 rules drop out for newer homes")
}

func TestStateNamesResolveToTheirOwnState(t *testing.T) {
	svc, _, _ := newService(t, nil)

	report := svc.Regulations("Portland", "Maine", "04101", "", 1965, "single-family")
	for _, reg := range report.Regulations {
		assert.NotContains(t, reg.Title, "Title 5", "Massachusetts rules must not apply to Maine")
	}

	c := svc.Climate(context.Background(), "04101", "Portland", "Maine")
	assert.Equal(t, 80.0, c.Climate.Snowfall)

	tx := svc.Recommend(context.Background(), models.HomeLocation{City: "Austin", State: "Texas", ZipCode: "78701"})
	assert.Equal(t, "TX", tx.State)
	assert.True(t, tx.Climate.HailRisk)
}

func TestClimate_UsesCachedHistory(t *testing.T) {
	svc, _, _ := newService(t, &stubHistory{days: stormyDays()})
	report := svc.Climate(context.Background(), "33101", "Miami", "FL")
	require.NotNil(t, report.Weather)
	assert.Equal(t, storm.MethodWeather, report.StormMethod)
}

func inventory() models.HomeInventory {
	return models.HomeInventory{
		Home: models.HomeDetails{ID: "home-1", City: "Miami", State: "FL", ZipCode: "33101", YearBuilt: 1965, HomeType: "single-family"},
		Systems: []models.InventoryItem{
			{Type: "HVAC", Name: "Central AC", ExpectedLifespan: 15},
		},
	}
}

func TestBuildPrompt_FillsClimate(t *testing.T) {
	svc, _, _ := newService(t, nil)
	text := svc.BuildPrompt(context.Background(), inventory())
	assert.Contains(t, text, "## Climate Context")
	assert.Contains(t, text, "Today's date is 2024-06-15.")
}

func TestGenerateTaskPlan_Disabled(t *testing.T) {
	svc, _, pub := newService(t, nil)

	plan, err := svc.GenerateTaskPlan(context.Background(), inventory())

	assert.ErrorIs(t, err, llm.ErrDisabled)
	assert.NotEmpty(t, plan.ComplianceTasks)
	assert.Empty(t, plan.GeneratedTasks)
	assert.NotEmpty(t, plan.Prompt)
	assert.Empty(t, pub.batches)
}

func TestGenerateTaskPlan_MergesGeneratedTasks(t *testing.T) {
	model := &stubModel{response: `[{"name":"Replace AC filter","description":"Swap it.","category":"HVAC","frequency":"MONTHLY","priority":"medium","nextDueDate":"2024-07-01"}]`}
	gen := llm.NewTaskGenerator(model, clockwork.NewFakeClockAt(now), nil, time.Second)
	svc, _, pub := newService(t, nil, WithTaskGenerator(gen))

	plan, err := svc.GenerateTaskPlan(context.Background(), inventory())

	require.NoError(t, err)
	require.Len(t, plan.GeneratedTasks, 1)
	assert.NotEmpty(t, plan.ComplianceTasks)
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "home-1", pub.batches[0].HomeID)
	assert.Len(t, pub.batches[0].GeneratedTasks, 1)
}

func TestGenerateTaskPlan_ModelFailure(t *testing.T) {
	gen := llm.NewTaskGenerator(&stubModel{err: errors.New("quota")}, nil, nil, time.Second)
	svc, _, _ := newService(t, nil, WithTaskGenerator(gen))

	plan, err := svc.GenerateTaskPlan(context.Background(), inventory())

	require.Error(t, err)
	assert.False(t, errors.Is(err, llm.ErrDisabled))
	assert.NotEmpty(t, plan.ComplianceTasks)
}

func TestCacheMaintenance(t *testing.T) {
	svc, zc, _ := newService(t, &stubHistory{days: stormyDays()})
	ctx := context.Background()
	svc.Recommend(ctx, miamiHome())

	assert.Equal(t, 0, svc.SweepCache(ctx))
	assert.True(t, svc.InvalidateZip(ctx, "33101"))
	_, ok := zc.Get(ctx, "33101")
	assert.False(t, ok)

	bare := NewRecommendationService()
	assert.False(t, bare.InvalidateZip(ctx, "33101"))
	assert.Equal(t, 0, bare.SweepCache(ctx))
}
