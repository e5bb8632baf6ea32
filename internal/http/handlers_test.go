package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
	"github.com/kjstillabower/home-maintenance-service/internal/client"
	"github.com/kjstillabower/home-maintenance-service/internal/lifecycle"
	"github.com/kjstillabower/home-maintenance-service/internal/llm"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/service"
	"github.com/kjstillabower/home-maintenance-service/internal/traffic"
	"github.com/kjstillabower/home-maintenance-service/internal/weather"
)

var testNow = time.Date(2024, time.June, 15, 14, 30, 0, 0, time.UTC)

type stubHistory struct {
	days []client.DailyObservation
	err  error
}

func (s *stubHistory) FetchDaily(ctx context.Context, req client.HistoryRequest) ([]client.DailyObservation, error) {
	return s.days, s.err
}

func (s *stubHistory) Source() string { return "stub" }

type stubModel struct {
	response string
	err      error
}

func (m *stubModel) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *stubModel) Close() error { return nil }

func rainyDays() []client.DailyObservation {
	return []client.DailyObservation{
		{Temp: 80, TempMax: 90, TempMin: 70, Precip: 1.2, WindSpeed: 15, Conditions: "Rain"},
		{Temp: 78, TempMax: 85, TempMin: 72, Conditions: "Clear"},
	}
}

type testEnv struct {
	router  http.Handler
	tracker *traffic.Tracker
	cache   *cache.ZipCache
}

type envOption func(*envConfig)

type envConfig struct {
	history client.HistoryClient
	model   llm.Client
	health  *HealthConfig
	routes  RouterConfig
}

func withHistory(hc client.HistoryClient) envOption {
	return func(c *envConfig) { c.history = hc }
}

func withModel(m llm.Client) envOption {
	return func(c *envConfig) { c.model = m }
}

func withHealth(h *HealthConfig) envOption {
	return func(c *envConfig) { c.health = h }
}

func withRoutes(r RouterConfig) envOption {
	return func(c *envConfig) { c.routes = r }
}

func newTestEnv(t *testing.T, opts ...envOption) testEnv {
	t.Helper()
	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := clockwork.NewFakeClockAt(testNow)
	tracker := traffic.New(clock)
	zc := cache.NewZipCache(cache.NewInMemoryStore(), cache.WithClock(clock))
	resolver := weather.NewResolver(zc, cfg.history, weather.WithClock(clock), weather.WithOutcomeRecorder(tracker))

	svcOpts := []service.Option{
		service.WithCache(zc),
		service.WithResolver(resolver),
		service.WithClock(clock),
	}
	if cfg.model != nil {
		svcOpts = append(svcOpts, service.WithTaskGenerator(llm.NewTaskGenerator(cfg.model, clock, nil, time.Second)))
	}
	svc := service.NewRecommendationService(svcOpts...)

	h := NewHandler(svc, tracker, cfg.health, zap.NewNop())
	routes := cfg.routes
	if routes.Traffic == nil {
		routes.Traffic = tracker
	}
	lifecycle.Reset()
	lifecycle.SetReady(true)
	t.Cleanup(lifecycle.Reset)
	return testEnv{router: NewRouter(h, routes), tracker: tracker, cache: zc}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != code {
		t.Errorf("error.code = %q, want %q", body.Error.Code, code)
	}
	if body.Error.RequestID == "" {
		t.Error("error.requestId is empty")
	}
	if body.Error.RequestID != w.Header().Get(CorrelationIDHeader) {
		t.Errorf("error.requestId = %q, header = %q", body.Error.RequestID, w.Header().Get(CorrelationIDHeader))
	}
}

const miamiLocation = `{"city":"Miami","state":"FL","zipCode":"33101","yearBuilt":1965,"homeType":"single-family"}`

func TestPostRecommendations_Success(t *testing.T) {
	env := newTestEnv(t, withHistory(&stubHistory{days: rainyDays()}))

	w := do(t, env.router, "POST", "/recommendations", miamiLocation)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var rec models.Recommendation
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Weather == nil {
		t.Error("weather missing")
	}
	if rec.StormMethod != "weather" {
		t.Errorf("stormMethod = %q, want weather", rec.StormMethod)
	}
	if len(rec.ComplianceTasks) == 0 {
		t.Error("expected compliance tasks for a 1965 Miami home")
	}
	if env.tracker.RequestCount(time.Minute) != 1 {
		t.Errorf("provider outcomes = %d, want 1", env.tracker.RequestCount(time.Minute))
	}
}

func TestPostRecommendations_ProviderFailureStillAnswers(t *testing.T) {
	env := newTestEnv(t, withHistory(&stubHistory{err: client.ErrRateLimited}))

	w := do(t, env.router, "POST", "/recommendations", miamiLocation)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var rec models.Recommendation
	_ = json.NewDecoder(w.Body).Decode(&rec)
	if rec.Weather != nil {
		t.Error("weather should be absent")
	}
	if rec.StormFrequency != models.StormFrequencySevere {
		t.Errorf("stormFrequency = %q, want severe from FL estimate", rec.StormFrequency)
	}
}

func TestPostRecommendations_BadInput(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"city":`, CodeInvalidRequest},
		{"bad zip", `{"city":"Miami","state":"FL","zipCode":"3310"}`, CodeInvalidZip},
		{"bad city", `{"city":"Mi<a>mi","state":"FL","zipCode":"33101"}`, CodeInvalidCity},
		{"bad state", `{"city":"Miami","state":"F1","zipCode":"33101"}`, CodeInvalidState},
		{"bad year", `{"city":"Miami","state":"FL","zipCode":"33101","yearBuilt":42}`, CodeInvalidRequest},
		{"bad home id", `{"homeId":"not-a-uuid","city":"Miami","state":"FL","zipCode":"33101"}`, CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, env.router, "POST", "/recommendations", tt.body)
			assertError(t, w, http.StatusBadRequest, tt.code)
		})
	}
}

func TestGetClimate(t *testing.T) {
	env := newTestEnv(t)

	w := do(t, env.router, "GET", "/climate/98101?city=Seattle&state=WA", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report models.ClimateReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.ZipCode != "98101" {
		t.Errorf("zipCode = %q", report.ZipCode)
	}
	if report.StormMethod != "state" {
		t.Errorf("stormMethod = %q, want state", report.StormMethod)
	}

	assertError(t, do(t, env.router, "GET", "/climate/abc", ""), http.StatusBadRequest, CodeInvalidZip)
}

func TestGetRegulations(t *testing.T) {
	env := newTestEnv(t)

	w := do(t, env.router, "GET", "/regulations?city=Miami&state=FL&zip=33101&yearBuilt=1965&homeType=single-family", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report models.RegulationReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Regulations) == 0 || len(report.Applicable) == 0 {
		t.Errorf("report = %d regulations, %d applicable", len(report.Regulations), len(report.Applicable))
	}

	w = do(t, env.router, "GET", "/regulations?state=FL", "")
	if w.Code != http.StatusOK {
		t.Fatalf("missing inputs status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"regulations":[]`) {
		t.Errorf("missing inputs should yield an empty list, got %s", w.Body.String())
	}

	assertError(t, do(t, env.router, "GET", "/regulations?city=Miami&state=FL&zip=33101&yearBuilt=old", ""), http.StatusBadRequest, CodeInvalidYear)
}

func TestStateNamesMapToCodes(t *testing.T) {
	env := newTestEnv(t)

	w := do(t, env.router, "GET", "/regulations?city=Portland&state=Maine&zip=04101", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "Title 5") {
		t.Errorf("Maine home got Massachusetts rules: %s", w.Body.String())
	}

	w = do(t, env.router, "GET", "/climate/04101?city=Portland&state=Maine", "")
	if w.Code != http.StatusOK {
		t.Fatalf("climate status = %d", w.Code)
	}
	var report models.ClimateReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Climate.Snowfall != 80 {
		t.Errorf("snowfall = %v, want Maine's 80", report.Climate.Snowfall)
	}

	assertError(t, do(t, env.router, "GET", "/climate/04101?state=Atlantis", ""), http.StatusBadRequest, CodeInvalidState)
}

const inventoryBody = `{
  "home": {"id": "home-1", "city": "Miami", "state": "FL", "zipCode": "33101", "yearBuilt": 1965, "homeType": "single-family"},
  "systems": [{"type": "HVAC", "name": "Central AC", "expectedLifespan": 15}]
}`

func TestPostTaskPrompt(t *testing.T) {
	env := newTestEnv(t)

	w := do(t, env.router, "POST", "/tasks/prompt", inventoryBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Prompt, "Central AC") {
		t.Errorf("prompt missing inventory item: %s", body.Prompt)
	}

	assertError(t, do(t, env.router, "POST", "/tasks/prompt", `{"systems":[{"name":"no type"}]}`), http.StatusBadRequest, CodeInvalidRequest)
}

func TestPostTaskGenerate(t *testing.T) {
	model := &stubModel{response: `[{"name":"Replace AC filter","description":"Swap it.","category":"HVAC","frequency":"MONTHLY","priority":"medium","nextDueDate":"2024-07-01"}]`}
	env := newTestEnv(t, withModel(model))

	w := do(t, env.router, "POST", "/tasks/generate", inventoryBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var plan models.TaskPlan
	if err := json.NewDecoder(w.Body).Decode(&plan); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(plan.GeneratedTasks) != 1 || len(plan.ComplianceTasks) == 0 {
		t.Errorf("plan = %d generated, %d compliance", len(plan.GeneratedTasks), len(plan.ComplianceTasks))
	}
	if strings.Contains(w.Body.String(), "Today's date") {
		t.Error("prompt should not be serialized in the plan")
	}
}

func TestPostTaskGenerate_Errors(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t)
		assertError(t, do(t, env.router, "POST", "/tasks/generate", inventoryBody), http.StatusServiceUnavailable, CodeLLMDisabled)
	})
	t.Run("model failure", func(t *testing.T) {
		env := newTestEnv(t, withModel(&stubModel{err: errors.New("quota")}))
		assertError(t, do(t, env.router, "POST", "/tasks/generate", inventoryBody), http.StatusBadGateway, CodeLLMUnavailable)
	})
	t.Run("timeout", func(t *testing.T) {
		env := newTestEnv(t, withModel(&stubModel{err: context.DeadlineExceeded}))
		assertError(t, do(t, env.router, "POST", "/tasks/generate", inventoryBody), http.StatusGatewayTimeout, CodeRequestTimeout)
	})
}

func TestCacheRoutes(t *testing.T) {
	env := newTestEnv(t, withHistory(&stubHistory{days: rainyDays()}))
	do(t, env.router, "POST", "/recommendations", miamiLocation)
	if _, ok := env.cache.Get(context.Background(), "33101"); !ok {
		t.Fatal("expected cached entry after recommendation")
	}

	w := do(t, env.router, "POST", "/cache/sweep", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"removed":0`) {
		t.Errorf("sweep = %d %s", w.Code, w.Body.String())
	}

	w = do(t, env.router, "DELETE", "/cache/33101", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if _, ok := env.cache.Get(context.Background(), "33101"); ok {
		t.Error("entry still cached after DELETE")
	}

	assertError(t, do(t, env.router, "DELETE", "/cache/miami", ""), http.StatusBadRequest, CodeInvalidZip)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(env testEnv)
		health     *HealthConfig
		wantCode   int
		wantStatus string
	}{
		{
			name:       "healthy without config",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "starting",
			setup:      func(testEnv) { lifecycle.SetReady(false) },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "starting",
		},
		{
			name:       "shutting down",
			setup:      func(testEnv) { lifecycle.SetShuttingDown(true) },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "shutting-down",
		},
		{
			name: "degraded on provider errors",
			setup: func(env testEnv) {
				for i := 0; i < 5; i++ {
					env.tracker.RecordError()
				}
			},
			health:     &HealthConfig{WeatherEnabled: true, DegradedWindow: time.Minute, DegradedErrorPct: 50, MinSamples: 3},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
		{
			name: "below min samples stays healthy",
			setup: func(env testEnv) {
				env.tracker.RecordError()
			},
			health:     &HealthConfig{WeatherEnabled: true, DegradedWindow: time.Minute, DegradedErrorPct: 50, MinSamples: 3},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, withHealth(tt.health))
			if tt.setup != nil {
				tt.setup(env)
			}
			w := do(t, env.router, "GET", "/health", "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStatus)
			}
			if body["service"] != "home-maintenance-service" {
				t.Errorf("service = %v", body["service"])
			}
		})
	}
}

func TestGetHealth_Checks(t *testing.T) {
	health := &HealthConfig{
		LLMEnabled: true,
		Version:    "1.2.3",
		StartTime:  time.Now().Add(-time.Minute),
		CachePing:  func(context.Context) error { return errors.New("connection refused") },
	}
	env := newTestEnv(t, withHealth(health))

	w := do(t, env.router, "GET", "/health", "")
	var body struct {
		Version string            `json:"version"`
		Checks  map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version != "1.2.3" {
		t.Errorf("version = %q", body.Version)
	}
	want := map[string]string{"weatherHistory": "disabled", "taskGeneration": "healthy", "cache": "unhealthy"}
	for k, v := range want {
		if body.Checks[k] != v {
			t.Errorf("checks[%s] = %q, want %q", k, body.Checks[k], v)
		}
	}
}

func TestGetHealth_LogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewHandler(service.NewRecommendationService(), nil, nil, zap.New(core))
	lifecycle.Reset()
	lifecycle.SetReady(true)
	t.Cleanup(lifecycle.Reset)

	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	lifecycle.SetShuttingDown(true)
	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["current_status"]; got != "shutting-down" {
		t.Errorf("current_status = %v", got)
	}
}
