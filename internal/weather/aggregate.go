package weather

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/home-maintenance-service/internal/client"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

// daysPerYear annualizes totals over the returned day count.
const daysPerYear = 365.25

// stormPrecipThreshold is the daily precipitation (inches) above which a day is a storm day.
const stormPrecipThreshold = 0.5

var stormWords = []string{"storm", "thunder", "rain"}

// conditionMentions reports whether a day's condition text mentions word. Event counts
// rely on provider free text; this is the single place to swap in structured fields.
func conditionMentions(day client.DailyObservation, word string) bool {
	text := strings.ToLower(day.Conditions + " " + day.Description)
	return strings.Contains(text, word)
}

func isStormDay(day client.DailyObservation) bool {
	if day.Precip > stormPrecipThreshold {
		return true
	}
	for _, w := range stormWords {
		if conditionMentions(day, w) {
			return true
		}
	}
	return false
}

// Aggregate summarizes daily observations into annualized history. It returns false when
// days is empty.
func Aggregate(days []client.DailyObservation, start, end time.Time, source string) (models.HistoricalWeatherData, bool) {
	if len(days) == 0 {
		return models.HistoricalWeatherData{}, false
	}

	var totalPrecip, totalSnow, totalTemp, totalWind, maxWind float64
	var stormDays, hurricanes, tornadoes, hail int
	maxTemp, minTemp := math.Inf(-1), math.Inf(1)
	for _, d := range days {
		totalPrecip += d.Precip
		totalSnow += d.Snow
		totalTemp += d.Temp
		totalWind += d.WindSpeed
		maxTemp = math.Max(maxTemp, d.TempMax)
		minTemp = math.Min(minTemp, d.TempMin)
		maxWind = math.Max(maxWind, math.Max(d.WindSpeed, d.WindGust))

		if isStormDay(d) {
			stormDays++
		}
		if conditionMentions(d, "hurricane") {
			hurricanes++
		}
		if conditionMentions(d, "tornado") {
			tornadoes++
		}
		if conditionMentions(d, "hail") {
			hail++
		}
	}

	n := float64(len(days))
	years := n / daysPerYear
	return models.HistoricalWeatherData{
		AverageRainfall:    round1(totalPrecip / years),
		AverageSnowfall:    round1(totalSnow / years),
		AverageTemperature: round1(totalTemp / n),
		MaxTemperature:     maxTemp,
		MinTemperature:     minTemp,
		StormDaysPerYear:   round1(float64(stormDays) / years),
		WindSpeedAvg:       round1(totalWind / n),
		WindSpeedMax:       maxWind,
		HurricaneEvents:    hurricanes,
		TornadoEvents:      tornadoes,
		HailEvents:         hail,
		Source:             source,
		DataYears:          fmt.Sprintf("%d-%d", start.Year(), end.Year()),
	}, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
