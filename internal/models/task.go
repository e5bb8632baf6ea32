package models

import "time"

// TaskCategory is the closed set of maintenance task categories.
type TaskCategory string

const (
	CategoryHVAC        TaskCategory = "HVAC"
	CategoryPlumbing    TaskCategory = "PLUMBING"
	CategoryExterior    TaskCategory = "EXTERIOR"
	CategoryStructural  TaskCategory = "STRUCTURAL"
	CategoryLandscaping TaskCategory = "LANDSCAPING"
	CategoryAppliance   TaskCategory = "APPLIANCE"
	CategorySafety      TaskCategory = "SAFETY"
	CategoryElectrical  TaskCategory = "ELECTRICAL"
	CategoryOther       TaskCategory = "OTHER"
)

// TaskFrequency is the closed set of task recurrence values.
type TaskFrequency string

const (
	FrequencyWeekly    TaskFrequency = "WEEKLY"
	FrequencyMonthly   TaskFrequency = "MONTHLY"
	FrequencyQuarterly TaskFrequency = "QUARTERLY"
	FrequencyBiannual  TaskFrequency = "BIANNUAL"
	FrequencyAnnual    TaskFrequency = "ANNUAL"
	FrequencySeasonal  TaskFrequency = "SEASONAL"
	FrequencyAsNeeded  TaskFrequency = "AS_NEEDED"
)

// Priority ranks task urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ComplianceTask is a maintenance task derived from a regulation. It is regenerated,
// never mutated, and handed to the task store which owns deduplication.
type ComplianceTask struct {
	Name                 string        `json:"name"`
	Description          string        `json:"description"`
	Category             TaskCategory  `json:"category"`
	Frequency            TaskFrequency `json:"frequency"`
	NextDueDate          time.Time     `json:"nextDueDate"`
	Priority             Priority      `json:"priority"`
	IsComplianceRequired bool          `json:"isComplianceRequired"`
	RegulationSource     string        `json:"regulationSource,omitempty"`
	PermitRequired       bool          `json:"permitRequired"`
}

// GeneratedTask is a task returned by the task-generation model after validation.
type GeneratedTask struct {
	Name           string        `json:"name" validate:"required,max=200"`
	Description    string        `json:"description" validate:"required"`
	Category       TaskCategory  `json:"category" validate:"required,oneof=HVAC PLUMBING EXTERIOR STRUCTURAL LANDSCAPING APPLIANCE SAFETY ELECTRICAL OTHER"`
	Frequency      TaskFrequency `json:"frequency" validate:"required,oneof=WEEKLY MONTHLY QUARTERLY BIANNUAL ANNUAL SEASONAL AS_NEEDED"`
	Priority       Priority      `json:"priority" validate:"required,oneof=critical high medium low"`
	NextDueDate    string        `json:"nextDueDate" validate:"required,datetime=2006-01-02"`
	EstimatedCost  float64       `json:"estimatedCost,omitempty" validate:"gte=0"`
	EstimatedHours float64       `json:"estimatedHours,omitempty" validate:"gte=0"`
	IsDIY          bool          `json:"isDiy"`
	RelatedItem    string        `json:"relatedItem,omitempty"`
	DependsOn      []string      `json:"dependsOn,omitempty"`
	PermitRequired bool          `json:"permitRequired"`
}
