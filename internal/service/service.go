// Package service orchestrates the recommendation pipeline: weather history, climate
// estimate, storm frequency, regulations, compliance tasks, and task generation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/home-maintenance-service/internal/cache"
	"github.com/kjstillabower/home-maintenance-service/internal/climate"
	"github.com/kjstillabower/home-maintenance-service/internal/compliance"
	"github.com/kjstillabower/home-maintenance-service/internal/llm"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
	"github.com/kjstillabower/home-maintenance-service/internal/prompt"
	"github.com/kjstillabower/home-maintenance-service/internal/publish"
	"github.com/kjstillabower/home-maintenance-service/internal/regulation"
	"github.com/kjstillabower/home-maintenance-service/internal/storm"
	"github.com/kjstillabower/home-maintenance-service/internal/weather"
)

// RecommendationService runs the pipeline. Every dependency is optional; a missing one
// degrades the result instead of failing it.
type RecommendationService struct {
	cache     *cache.ZipCache
	resolver  *weather.Resolver
	rules     *regulation.Resolver
	generator *llm.TaskGenerator
	publisher publish.Publisher
	clock     clockwork.Clock
	logger    *zap.Logger
}

// Option configures a RecommendationService.
type Option func(*RecommendationService)

// WithCache sets the ZIP cache used for maintenance operations.
func WithCache(zc *cache.ZipCache) Option {
	return func(s *RecommendationService) { s.cache = zc }
}

// WithResolver sets the weather history resolver.
func WithResolver(r *weather.Resolver) Option {
	return func(s *RecommendationService) { s.resolver = r }
}

// WithRegulations overrides the embedded regulation tables.
func WithRegulations(r *regulation.Resolver) Option {
	return func(s *RecommendationService) {
		if r != nil {
			s.rules = r
		}
	}
}

// WithTaskGenerator sets the model-backed task generator.
func WithTaskGenerator(g *llm.TaskGenerator) Option {
	return func(s *RecommendationService) { s.generator = g }
}

// WithPublisher sets the task store hand-off.
func WithPublisher(p publish.Publisher) Option {
	return func(s *RecommendationService) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock sets the clock used for due dates and item ages.
func WithClock(c clockwork.Clock) Option {
	return func(s *RecommendationService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the fallback logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *RecommendationService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRecommendationService creates a service with the embedded regulation tables and a
// no-op publisher unless overridden.
func NewRecommendationService(opts ...Option) *RecommendationService {
	s := &RecommendationService{
		rules:     regulation.Default(),
		publisher: publish.NoopPublisher{},
		clock:     clockwork.NewRealClock(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recommend runs the full pipeline for loc and hands the compliance tasks to the task
// store. It never fails: absent weather falls back to the state estimate, and missing
// city, state, or ZIP yields no regulations.
func (s *RecommendationService) Recommend(ctx context.Context, loc models.HomeLocation) models.Recommendation {
	logger := observability.LoggerFromContext(ctx, s.logger)
	city := strings.TrimSpace(loc.City)
	state := climate.NormalizeState(loc.State)
	zip := stripWhitespace(loc.ZipCode)
	now := s.clock.Now()

	report := s.climateFor(ctx, weather.Query{Lat: loc.Lat, Lon: loc.Lon, City: city, State: state, ZipCode: zip})
	regs := s.regulationsFor(city, state, zip, loc.County, loc.YearBuilt, loc.HomeType)
	tasks := compliance.TasksFor(regs.Applicable, compliance.BaseDate(now))

	rec := models.Recommendation{
		ZipCode:         zip,
		City:            city,
		State:           state,
		Weather:         report.Weather,
		Climate:         report.Climate,
		StormFrequency:  report.StormFrequency,
		StormMethod:     report.StormMethod,
		Regulations:     regs.Regulations,
		Applicable:      regs.Applicable,
		ComplianceTasks: tasks,
		GeneratedAt:     now,
	}

	s.publisher.Publish(ctx, publish.Batch{
		HomeID:          loc.HomeID,
		ZipCode:         zip,
		GeneratedAt:     now,
		ComplianceTasks: tasks,
	})

	logger.Info("recommendation generated",
		zap.String("zip", zip),
		zap.String("stormFrequency", string(rec.StormFrequency)),
		zap.String("stormMethod", rec.StormMethod),
		zap.Bool("weatherHistory", rec.Weather != nil),
		zap.Int("regulations", len(rec.Regulations)),
		zap.Int("complianceTasks", len(tasks)),
	)
	return rec
}

// Climate returns the climate view for a ZIP. City and state refine the estimate; the
// state tables need a state to say anything specific.
func (s *RecommendationService) Climate(ctx context.Context, zip, city, state string) models.ClimateReport {
	return s.climateFor(ctx, weather.Query{
		City:    strings.TrimSpace(city),
		State:   climate.NormalizeState(state),
		ZipCode: stripWhitespace(zip),
	})
}

// Regulations resolves every regulation for a location and the subset that applies to the
// home described by yearBuilt and homeType.
func (s *RecommendationService) Regulations(city, state, zip, county string, yearBuilt int, homeType string) models.RegulationReport {
	return s.regulationsFor(strings.TrimSpace(city), climate.NormalizeState(state), stripWhitespace(zip), county, yearBuilt, homeType)
}

// BuildPrompt returns the task-generation prompt for inv. Climate is estimated from the
// home's state when the inventory does not carry it.
func (s *RecommendationService) BuildPrompt(ctx context.Context, inv models.HomeInventory) string {
	inv = s.withClimate(ctx, inv)
	return prompt.Build(inv, s.clock.Now())
}

// GenerateTaskPlan merges compliance tasks with model-generated tasks for inv. Compliance
// tasks are always returned; the error reports why generated tasks are missing and wraps
// llm.ErrDisabled when no model is configured.
func (s *RecommendationService) GenerateTaskPlan(ctx context.Context, inv models.HomeInventory) (models.TaskPlan, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	inv = s.withClimate(ctx, inv)
	home := inv.Home
	now := s.clock.Now()

	regs := s.regulationsFor(strings.TrimSpace(home.City), climate.NormalizeState(home.State), stripWhitespace(home.ZipCode), home.County, home.YearBuilt, home.HomeType)
	plan := models.TaskPlan{
		ComplianceTasks: compliance.TasksFor(regs.Applicable, compliance.BaseDate(now)),
		GeneratedTasks:  []models.GeneratedTask{},
	}

	var (
		generated []models.GeneratedTask
		text      string
		err       error
	)
	if s.generator != nil {
		generated, text, err = s.generator.Generate(ctx, inv)
	} else {
		text, err = prompt.Build(inv, now), llm.ErrDisabled
	}
	plan.Prompt = text
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			logger.Warn("task generation failed", zap.String("zip", home.ZipCode), zap.Error(err))
		}
		return plan, fmt.Errorf("generate task plan: %w", err)
	}
	plan.GeneratedTasks = generated

	s.publisher.Publish(ctx, publish.Batch{
		HomeID:          home.ID,
		ZipCode:         stripWhitespace(home.ZipCode),
		GeneratedAt:     now,
		ComplianceTasks: plan.ComplianceTasks,
		GeneratedTasks:  plan.GeneratedTasks,
	})
	return plan, nil
}

// InvalidateZip removes a ZIP's cache entry. It reports false when no cache is configured.
func (s *RecommendationService) InvalidateZip(ctx context.Context, zip string) bool {
	if s.cache == nil {
		return false
	}
	s.cache.Invalidate(ctx, zip)
	return true
}

// SweepCache deletes expired ZIP cache entries and returns how many were removed.
func (s *RecommendationService) SweepCache(ctx context.Context) int {
	if s.cache == nil {
		return 0
	}
	return s.cache.SweepExpired(ctx)
}

func (s *RecommendationService) climateFor(ctx context.Context, q weather.Query) models.ClimateReport {
	report := models.ClimateReport{
		ZipCode: q.ZipCode,
		Climate: climate.Estimate(q.City, q.State, q.ZipCode),
	}
	if s.resolver != nil {
		if hist, ok := s.resolver.Resolve(ctx, q); ok {
			report.Weather = &hist
		}
	}
	report.StormFrequency, report.StormMethod = storm.Determine(report.Weather, &report.Climate)
	return report
}

func (s *RecommendationService) regulationsFor(city, state, zip, county string, yearBuilt int, homeType string) models.RegulationReport {
	regs := s.rules.Resolve(city, state, zip, county)
	return models.RegulationReport{
		Regulations: regs,
		Applicable:  regulation.Recommend(regs, regulation.Home{YearBuilt: yearBuilt, HomeType: homeType}, s.clock.Now()),
	}
}

// withClimate fills inv.Climate from the pipeline when absent. Weather history, when
// available, overrides the state-table storm frequency.
func (s *RecommendationService) withClimate(ctx context.Context, inv models.HomeInventory) models.HomeInventory {
	if inv.Climate != nil || strings.TrimSpace(inv.Home.State) == "" {
		return inv
	}
	report := s.Climate(ctx, inv.Home.ZipCode, inv.Home.City, inv.Home.State)
	c := report.Climate
	c.StormFrequency = report.StormFrequency
	inv.Climate = &c
	return inv
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
