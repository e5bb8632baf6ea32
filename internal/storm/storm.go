// Package storm classifies a location's storm frequency.
package storm

import (
	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
)

// Classification methods, used as the metric label.
const (
	MethodWeather = "weather"
	MethodState   = "state"
	MethodDefault = "default"
)

// ClassifyFromWeather maps weather history to a storm frequency. Rules are evaluated
// top-down and the first match wins.
func ClassifyFromWeather(w models.HistoricalWeatherData) models.StormFrequency {
	hurricanes := w.HurricaneEvents
	tornadoes := w.TornadoEvents
	stormDays := w.StormDaysPerYear

	switch {
	case hurricanes >= 2,
		hurricanes >= 1 && stormDays > 60:
		return models.StormFrequencySevere
	case tornadoes >= 3,
		stormDays > 50,
		tornadoes >= 1 && stormDays > 40,
		hurricanes >= 1 && stormDays > 30:
		return models.StormFrequencyHigh
	case stormDays > 30,
		tornadoes >= 1,
		w.HailEvents >= 5,
		w.WindSpeedMax > 60:
		return models.StormFrequencyModerate
	default:
		return models.StormFrequencyLow
	}
}

// Determine prefers weather history, then the climate estimate, then moderate.
func Determine(weather *models.HistoricalWeatherData, climate *models.ClimateData) (models.StormFrequency, string) {
	var (
		level  models.StormFrequency
		method string
	)
	switch {
	case weather != nil:
		level, method = ClassifyFromWeather(*weather), MethodWeather
	case climate != nil && climate.StormFrequency.Rank() >= 0:
		level, method = climate.StormFrequency, MethodState
	default:
		level, method = models.StormFrequencyModerate, MethodDefault
	}
	observability.StormClassificationsTotal.WithLabelValues(string(level), method).Inc()
	return level, method
}
