package models

import "time"

// StormFrequency is an ordinal storm-risk level for a location.
type StormFrequency string

const (
	StormFrequencyLow      StormFrequency = "low"
	StormFrequencyModerate StormFrequency = "moderate"
	StormFrequencyHigh     StormFrequency = "high"
	StormFrequencySevere   StormFrequency = "severe"
)

// Rank orders storm frequencies from 0 (low) to 3 (severe). Unknown values rank -1.
func (s StormFrequency) Rank() int {
	switch s {
	case StormFrequencyLow:
		return 0
	case StormFrequencyModerate:
		return 1
	case StormFrequencyHigh:
		return 2
	case StormFrequencySevere:
		return 3
	default:
		return -1
	}
}

// HistoricalWeatherData is a decade-scale weather summary for one location.
type HistoricalWeatherData struct {
	AverageRainfall    float64 `json:"averageRainfall"`
	AverageSnowfall    float64 `json:"averageSnowfall"`
	AverageTemperature float64 `json:"averageTemperature"`
	MaxTemperature     float64 `json:"maxTemperature"`
	MinTemperature     float64 `json:"minTemperature"`
	StormDaysPerYear   float64 `json:"stormDaysPerYear"`
	WindSpeedAvg       float64 `json:"windSpeedAvg"`
	WindSpeedMax       float64 `json:"windSpeedMax"`
	HurricaneEvents    int     `json:"hurricaneEvents"`
	TornadoEvents      int     `json:"tornadoEvents"`
	HailEvents         int     `json:"hailEvents"`
	Source             string  `json:"source"`
	DataYears          string  `json:"dataYears"`
}

// ClimateData is the table-derived climate estimate used when no weather history is available.
type ClimateData struct {
	StormFrequency StormFrequency `json:"stormFrequency"`
	Rainfall       float64        `json:"rainfall"`
	Snowfall       float64        `json:"snowfall"`
	WindZone       string         `json:"windZone"`
	HurricaneRisk  bool           `json:"hurricaneRisk"`
	TornadoRisk    bool           `json:"tornadoRisk"`
	HailRisk       bool           `json:"hailRisk"`
	Source         string         `json:"source"`
}

// ZipCacheEntry is one resolved weather/climate result keyed by normalized 5-digit ZIP.
type ZipCacheEntry struct {
	ZipCode     string                `json:"zipCode"`
	City        string                `json:"city"`
	State       string                `json:"state"`
	WeatherData HistoricalWeatherData `json:"weatherData"`
	ClimateData *ClimateData          `json:"climateData,omitempty"`
	Source      string                `json:"source"`
	ExpiresAt   time.Time             `json:"expiresAt"`
}

// Expired reports whether the entry is past its expiry at now.
func (e ZipCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
