package compliance

import "strings"

// Permit types reported by CheckPermitRequirement.
const (
	PermitElectrical = "electrical"
	PermitPlumbing   = "plumbing"
	PermitMechanical = "mechanical"
	PermitRoofing    = "roofing"
	PermitBuilding   = "building"
)

// PermitCheck is the advisory result of CheckPermitRequirement.
type PermitCheck struct {
	Required   bool   `json:"required"`
	PermitType string `json:"permitType,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// CheckPermitRequirement guesses whether work needs a permit from its category and name.
// Keyword matching can over- or under-match; treat the result as advisory.
func CheckPermitRequirement(category, name string) PermitCheck {
	cat := strings.ToLower(strings.TrimSpace(category))
	n := strings.ToLower(name)

	switch {
	case cat == "electrical":
		return PermitCheck{Required: true, PermitType: PermitElectrical, Reason: "electrical work requires a licensed permit"}
	case cat == "plumbing" && containsAny(n, "replace", "install", "repair"):
		return PermitCheck{Required: true, PermitType: PermitPlumbing, Reason: "plumbing replacement, installation, or repair"}
	case cat == "hvac" && containsAny(n, "replace", "install"):
		return PermitCheck{Required: true, PermitType: PermitMechanical, Reason: "HVAC equipment replacement or installation"}
	case strings.Contains(n, "roof") && strings.Contains(n, "replace"):
		return PermitCheck{Required: true, PermitType: PermitRoofing, Reason: "roof replacement"}
	case containsAny(n, "foundation", "load-bearing") || cat == "structural":
		return PermitCheck{Required: true, PermitType: PermitBuilding, Reason: "structural work"}
	}
	return PermitCheck{}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
