package models

// RegulationType classifies a local regulation.
type RegulationType string

const (
	RegulationInspection    RegulationType = "inspection"
	RegulationPermit        RegulationType = "permit"
	RegulationCode          RegulationType = "code"
	RegulationSafety        RegulationType = "safety"
	RegulationEnvironmental RegulationType = "environmental"
)

// LocalRegulation is a static building-code, safety, or inspection requirement.
// AppliesTo holds applicability tags such as "pre-1978" or "rental"; empty means always applies.
type LocalRegulation struct {
	Type        RegulationType `json:"type" yaml:"type"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	Frequency   string         `json:"frequency,omitempty" yaml:"frequency"`
	Required    bool           `json:"required" yaml:"required"`
	Penalty     string         `json:"penalty,omitempty" yaml:"penalty"`
	Source      string         `json:"source" yaml:"source"`
	AppliesTo   []string       `json:"appliesTo,omitempty" yaml:"applies_to"`
}
