package models

import "time"

// Recommendation is the output of one pipeline run for a home location.
type Recommendation struct {
	ZipCode         string                 `json:"zipCode"`
	City            string                 `json:"city"`
	State           string                 `json:"state"`
	Weather         *HistoricalWeatherData `json:"weather,omitempty"`
	Climate         ClimateData            `json:"climate"`
	StormFrequency  StormFrequency         `json:"stormFrequency"`
	StormMethod     string                 `json:"stormMethod"`
	Regulations     []LocalRegulation      `json:"regulations"`
	Applicable      []LocalRegulation      `json:"applicableRegulations"`
	ComplianceTasks []ComplianceTask       `json:"complianceTasks"`
	GeneratedAt     time.Time              `json:"generatedAt"`
}

// ClimateReport is the climate view of a single ZIP code.
type ClimateReport struct {
	ZipCode        string                 `json:"zipCode"`
	Climate        ClimateData            `json:"climate"`
	Weather        *HistoricalWeatherData `json:"weather,omitempty"`
	StormFrequency StormFrequency         `json:"stormFrequency"`
	StormMethod    string                 `json:"stormMethod"`
}

// RegulationReport lists every regulation for a location and the subset that applies.
type RegulationReport struct {
	Regulations []LocalRegulation `json:"regulations"`
	Applicable  []LocalRegulation `json:"applicableRegulations"`
}
