package models

import "time"

// HomeLocation is the input to the recommendation pipeline.
type HomeLocation struct {
	HomeID    string  `json:"homeId,omitempty" validate:"omitempty,uuid"`
	City      string  `json:"city" validate:"max=100"`
	State     string  `json:"state" validate:"max=32"`
	ZipCode   string  `json:"zipCode" validate:"max=16"`
	County    string  `json:"county,omitempty" validate:"max=100"`
	YearBuilt int     `json:"yearBuilt,omitempty" validate:"omitempty,min=1600,max=2200"`
	HomeType  string  `json:"homeType,omitempty" validate:"max=64"`
	Lat       float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon       float64 `json:"lon,omitempty" validate:"omitempty,longitude"`
}

// HomeInventory is the full home record used to build the task-generation prompt.
type HomeInventory struct {
	Home             HomeDetails     `json:"home"`
	Systems          []InventoryItem `json:"systems,omitempty" validate:"dive"`
	Appliances       []InventoryItem `json:"appliances,omitempty" validate:"dive"`
	ExteriorFeatures []InventoryItem `json:"exteriorFeatures,omitempty" validate:"dive"`
	InteriorFeatures []InventoryItem `json:"interiorFeatures,omitempty" validate:"dive"`
	Climate          *ClimateData    `json:"climate,omitempty"`
}

// HomeDetails is the home-level metadata of an inventory.
type HomeDetails struct {
	ID            string  `json:"id,omitempty"`
	Name          string  `json:"name,omitempty"`
	Address       string  `json:"address,omitempty"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	ZipCode       string  `json:"zipCode"`
	County        string  `json:"county,omitempty"`
	YearBuilt     int     `json:"yearBuilt,omitempty" validate:"omitempty,min=1600,max=2200"`
	SquareFootage int     `json:"squareFootage,omitempty" validate:"gte=0"`
	HomeType      string  `json:"homeType,omitempty"`
	Bedrooms      int     `json:"bedrooms,omitempty" validate:"gte=0"`
	Bathrooms     float64 `json:"bathrooms,omitempty" validate:"gte=0"`
	Stories       int     `json:"stories,omitempty" validate:"gte=0"`
	Foundation    string  `json:"foundation,omitempty"`
}

// InventoryItem is a system, appliance, or feature in a home. ExpectedLifespan is in years.
type InventoryItem struct {
	Type             string     `json:"type" validate:"required"`
	Name             string     `json:"name,omitempty"`
	Brand            string     `json:"brand,omitempty"`
	Model            string     `json:"model,omitempty"`
	Material         string     `json:"material,omitempty"`
	Location         string     `json:"location,omitempty"`
	Condition        string     `json:"condition,omitempty"`
	InstallDate      *time.Time `json:"installDate,omitempty"`
	LastServiced     *time.Time `json:"lastServiced,omitempty"`
	ExpectedLifespan int        `json:"expectedLifespan,omitempty" validate:"gte=0"`
	Notes            string     `json:"notes,omitempty"`
}

// TaskPlan merges compliance-derived and model-generated tasks for one home.
type TaskPlan struct {
	ComplianceTasks []ComplianceTask `json:"complianceTasks"`
	GeneratedTasks  []GeneratedTask  `json:"generatedTasks"`
	Prompt          string           `json:"-"`
}
