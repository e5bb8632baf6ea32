// Package compliance turns applicable regulations into maintenance tasks.
package compliance

import (
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/home-maintenance-service/internal/climate"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
	"github.com/kjstillabower/home-maintenance-service/internal/regulation"
)

// frequencyOneTime is the one frequency that produces a task for a non-required regulation.
const frequencyOneTime = "one-time"

var frequencyTable = map[string]models.TaskFrequency{
	"annual":          models.FrequencyAnnual,
	"biannual":        models.FrequencyBiannual,
	"every-3-5-years": models.FrequencyAnnual,
	"every-5-years":   models.FrequencyAnnual,
	"on-sale":         models.FrequencyAsNeeded,
	"on-rental":       models.FrequencyAsNeeded,
	"on-installation": models.FrequencyAsNeeded,
	"one-time":        models.FrequencyAsNeeded,
}

var categoryTable = map[models.RegulationType]models.TaskCategory{
	models.RegulationInspection:    models.CategorySafety,
	models.RegulationEnvironmental: models.CategoryOther,
	models.RegulationCode:          models.CategoryStructural,
}

// Generator produces compliance tasks for a home.
type Generator struct {
	regs  *regulation.Resolver
	clock clockwork.Clock
}

// NewGenerator creates a Generator. Nil arguments use the embedded rules and the real clock.
func NewGenerator(regs *regulation.Resolver, clock clockwork.Clock) *Generator {
	if regs == nil {
		regs = regulation.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{regs: regs, clock: clock}
}

// Generate turns the applicable regulations for one home into tasks.
func (g *Generator) Generate(city, state, zipCode string, yearBuilt int, homeType, county string) []models.ComplianceTask {
	zip := stripWhitespace(zipCode)
	st := climate.NormalizeState(state)

	regs := g.regs.Resolve(city, st, zip, county)
	now := g.clock.Now()
	applicable := regulation.Recommend(regs, regulation.Home{YearBuilt: yearBuilt, HomeType: homeType}, now)
	return TasksFor(applicable, BaseDate(now))
}

// TasksFor converts already-filtered regulations into tasks due relative to base. A
// regulation yields a task only when it is required or its frequency is "one-time".
func TasksFor(regs []models.LocalRegulation, base time.Time) []models.ComplianceTask {
	tasks := make([]models.ComplianceTask, 0, len(regs))
	for _, reg := range regs {
		if !reg.Required && reg.Frequency != frequencyOneTime {
			continue
		}
		category := MapCategory(reg.Type)
		task := models.ComplianceTask{
			Name:                 reg.Title,
			Description:          BuildDescription(reg),
			Category:             category,
			Frequency:            MapFrequency(reg.Frequency),
			NextDueDate:          CalculateDueDate(reg, base),
			Priority:             MapPriority(reg),
			IsComplianceRequired: reg.Required,
			RegulationSource:     reg.Source,
			PermitRequired:       reg.Type == models.RegulationPermit || CheckPermitRequirement(string(category), reg.Title).Required,
		}
		observability.ComplianceTasksGeneratedTotal.WithLabelValues(string(task.Priority)).Inc()
		tasks = append(tasks, task)
	}
	return tasks
}

// BaseDate truncates t to midnight UTC of its calendar day.
func BaseDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MapFrequency maps a regulation frequency tag to a task frequency, defaulting to ANNUAL.
func MapFrequency(freq string) models.TaskFrequency {
	if f, ok := frequencyTable[strings.ToLower(strings.TrimSpace(freq))]; ok {
		return f
	}
	return models.FrequencyAnnual
}

// CalculateDueDate returns the first due date for reg counted from base. Multi-year
// requirements get a yearly check; sale and rental triggers sit ten years out.
func CalculateDueDate(reg models.LocalRegulation, base time.Time) time.Time {
	switch strings.ToLower(strings.TrimSpace(reg.Frequency)) {
	case "annual", "every-3-5-years", "every-5-years":
		return base.AddDate(1, 0, 0)
	case "biannual":
		return base.AddDate(0, 6, 0)
	case "on-sale", "on-rental":
		return base.AddDate(10, 0, 0)
	case "on-installation", "one-time":
		return base
	default:
		return base.AddDate(1, 0, 0)
	}
}

// MapCategory maps a regulation type to a task category, defaulting to SAFETY.
func MapCategory(t models.RegulationType) models.TaskCategory {
	if c, ok := categoryTable[t]; ok {
		return c
	}
	return models.CategorySafety
}

// MapPriority: critical for required safety rules, high for other required rules, else medium.
func MapPriority(reg models.LocalRegulation) models.Priority {
	switch {
	case reg.Required && reg.Type == models.RegulationSafety:
		return models.PriorityCritical
	case reg.Required:
		return models.PriorityHigh
	default:
		return models.PriorityMedium
	}
}

// BuildDescription appends penalty, source, and frequency clauses, in that order, to the
// regulation description.
func BuildDescription(reg models.LocalRegulation) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(reg.Description))
	if reg.Penalty != "" {
		b.WriteString(" Penalty for non-compliance: ")
		b.WriteString(reg.Penalty)
		b.WriteString(".")
	}
	if reg.Source != "" {
		b.WriteString(" Source: ")
		b.WriteString(reg.Source)
		b.WriteString(".")
	}
	if reg.Frequency != "" {
		b.WriteString(" Required frequency: ")
		b.WriteString(reg.Frequency)
		b.WriteString(".")
	}
	return strings.TrimSpace(b.String())
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
