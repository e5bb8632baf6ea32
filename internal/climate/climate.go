// Package climate estimates a location's climate from static state tables. It makes no
// network calls and always returns a value, so it is the fallback when weather history
// is unavailable.
package climate

import (
	"strings"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

// Defaults used when a state is missing from a table.
const (
	DefaultRainfall = 30.0
	DefaultSnowfall = 10.0
	DefaultWindZone = "standard"
)

// Source tags estimates produced by this package.
const Source = "state_tables"

// Annual rainfall in inches by state.
var rainfallByState = map[string]float64{
	"AL": 58, "AR": 50, "AZ": 13, "CA": 22, "CO": 16, "FL": 54, "GA": 50, "IL": 39,
	"KS": 29, "LA": 60, "MA": 48, "MS": 59, "NC": 50, "NM": 14, "NV": 10, "NY": 42,
	"OK": 36, "OR": 27, "SC": 50, "TN": 54, "TX": 29, "UT": 12, "WA": 38,
}

// Annual snowfall in inches by state.
var snowfallByState = map[string]float64{
	"AK": 75, "AZ": 5, "CA": 5, "CO": 60, "CT": 40, "FL": 0, "GA": 1, "ID": 45,
	"LA": 0, "MA": 45, "ME": 80, "MI": 60, "MN": 54, "MT": 50, "ND": 45, "NH": 70,
	"NY": 55, "SC": 1, "TX": 2, "UT": 55, "VT": 80, "WI": 50, "WY": 55,
}

// Design wind zone by state.
var windZoneByState = map[string]string{
	"FL": "hurricane", "LA": "hurricane", "TX": "hurricane", "NC": "hurricane",
	"SC": "hurricane", "GA": "hurricane", "AL": "hurricane", "MS": "hurricane",
	"OK": "high-wind", "KS": "high-wind", "NE": "high-wind", "IA": "high-wind",
	"MO": "high-wind", "AR": "high-wind", "WY": "high-wind",
}

func set(states ...string) map[string]bool {
	m := make(map[string]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

var (
	hurricaneStates = set("FL", "LA", "TX", "NC", "SC", "GA", "AL", "MS")
	tornadoStates   = set("TX", "OK", "KS", "NE", "IA", "MO", "AR", "MS", "AL", "TN", "IL", "IN", "SD")
	highStormStates = set("CO", "MN", "WI", "MI", "OH", "KY", "VA", "PA", "NY", "NJ", "MD", "ND")
	hailStates      = set("TX", "OK", "KS", "NE", "CO", "SD", "WY", "MT", "MN", "IA", "MO", "ND")

	// severeStates are the two most hurricane-exposed states. They sit in hurricaneStates
	// too but classify one level higher.
	severeStates = set("FL", "LA")
)

// stateCodes maps full state names, uppercased with single spaces, to postal codes.
var stateCodes = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR", "CALIFORNIA": "CA",
	"COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE", "DISTRICT OF COLUMBIA": "DC",
	"FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID", "ILLINOIS": "IL",
	"INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS", "KENTUCKY": "KY", "LOUISIANA": "LA",
	"MAINE": "ME", "MARYLAND": "MD", "MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN",
	"MISSISSIPPI": "MS", "MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV",
	"NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY",
	"NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK", "OREGON": "OR",
	"PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC", "SOUTH DAKOTA": "SD",
	"TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT", "VERMONT": "VT", "VIRGINIA": "VA",
	"WASHINGTON": "WA", "WEST VIRGINIA": "WV", "WISCONSIN": "WI", "WYOMING": "WY",
}

// StateCode returns the postal code for a two-letter code or a full state name. Unknown
// names report false.
func StateCode(s string) (string, bool) {
	s = strings.ToUpper(strings.Join(strings.Fields(s), " "))
	if len(s) == 2 {
		return s, true
	}
	code, ok := stateCodes[s]
	return code, ok
}

// NormalizeState maps s to a postal code. Known state names are looked up; anything else
// is uppercased and cut to its first two characters.
func NormalizeState(s string) string {
	if code, ok := StateCode(s); ok {
		return code
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > 2 {
		s = s[:2]
	}
	return s
}

// Estimate returns the table-derived climate for a location. City and ZIP are accepted
// for a stable signature; the tables are keyed by state only.
func Estimate(city, state, zipCode string) models.ClimateData {
	st := NormalizeState(state)

	rainfall, ok := rainfallByState[st]
	if !ok {
		rainfall = DefaultRainfall
	}
	snowfall, ok := snowfallByState[st]
	if !ok {
		snowfall = DefaultSnowfall
	}
	windZone, ok := windZoneByState[st]
	if !ok {
		windZone = DefaultWindZone
	}

	return models.ClimateData{
		StormFrequency: EstimateStormFrequency(st),
		Rainfall:       rainfall,
		Snowfall:       snowfall,
		WindZone:       windZone,
		HurricaneRisk:  hurricaneStates[st],
		TornadoRisk:    tornadoStates[st],
		HailRisk:       hailStates[st],
		Source:         Source,
	}
}

// EstimateStormFrequency classifies storm risk from state membership alone. It can disagree
// with a classification from weather history for the same place.
func EstimateStormFrequency(state string) models.StormFrequency {
	st := NormalizeState(state)
	switch {
	case severeStates[st]:
		return models.StormFrequencySevere
	case hurricaneStates[st], tornadoStates[st]:
		return models.StormFrequencyHigh
	case highStormStates[st]:
		return models.StormFrequencyModerate
	default:
		return models.StormFrequencyLow
	}
}
