// Package prompt builds the task-generation prompt sent to the language model.
package prompt

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

// Material age thresholds, in years, at or beyond which a warning is attached.
const (
	CopperPlumbingWarnAge = 50
	AsphaltRoofWarnAge    = 20
)

// Section headings, in output order.
const (
	HeadingHome       = "## Home Details"
	HeadingClimate    = "## Climate Context"
	HeadingSystems    = "## Systems"
	HeadingAppliances = "## Appliances"
	HeadingExterior   = "## Exterior Features"
	HeadingInterior   = "## Interior Features"
	HeadingPolicy     = "## Maintenance Planning Requirements"
	HeadingOutput     = "## Output Format"
)

const (
	dateLayout  = "2006-01-02"
	notRecorded = "None recorded."
)

// Build assembles the prompt for inv. Output depends only on inv and now.
func Build(inv models.HomeInventory, now time.Time) string {
	var b strings.Builder

	b.WriteString("You are a home maintenance expert. Create a personalized maintenance plan for the home described below.\n")
	fmt.Fprintf(&b, "Today's date is %s.\n\n", now.Format(dateLayout))

	writeHome(&b, inv.Home, now)
	if inv.Climate != nil {
		writeClimate(&b, *inv.Climate)
	}
	writeItems(&b, HeadingSystems, inv.Systems, inv.Home.YearBuilt, now)
	writeItems(&b, HeadingAppliances, inv.Appliances, inv.Home.YearBuilt, now)
	writeItems(&b, HeadingExterior, inv.ExteriorFeatures, inv.Home.YearBuilt, now)
	writeItems(&b, HeadingInterior, inv.InteriorFeatures, inv.Home.YearBuilt, now)
	writePolicy(&b)
	writeOutputFormat(&b)

	return b.String()
}

func writeHome(b *strings.Builder, h models.HomeDetails, now time.Time) {
	b.WriteString(HeadingHome + "\n")
	field(b, "Name", h.Name)
	field(b, "Address", h.Address)
	field(b, "Location", joinNonEmpty(", ", h.City, h.State, h.ZipCode))
	field(b, "County", h.County)
	if h.YearBuilt > 0 {
		fmt.Fprintf(b, "- Year built: %d (%d years old)\n", h.YearBuilt, now.Year()-h.YearBuilt)
	}
	field(b, "Home type", h.HomeType)
	if h.SquareFootage > 0 {
		fmt.Fprintf(b, "- Square footage: %d\n", h.SquareFootage)
	}
	if h.Bedrooms > 0 {
		fmt.Fprintf(b, "- Bedrooms: %d\n", h.Bedrooms)
	}
	if h.Bathrooms > 0 {
		fmt.Fprintf(b, "- Bathrooms: %g\n", h.Bathrooms)
	}
	if h.Stories > 0 {
		fmt.Fprintf(b, "- Stories: %d\n", h.Stories)
	}
	field(b, "Foundation", h.Foundation)
	b.WriteString("\n")
}

func writeClimate(b *strings.Builder, c models.ClimateData) {
	b.WriteString(HeadingClimate + "\n")
	fmt.Fprintf(b, "- Storm frequency: %s\n", c.StormFrequency)
	fmt.Fprintf(b, "- Annual rainfall: %g inches\n", c.Rainfall)
	fmt.Fprintf(b, "- Annual snowfall: %g inches\n", c.Snowfall)
	field(b, "Wind zone", c.WindZone)
	var risks []string
	if c.HurricaneRisk {
		risks = append(risks, "hurricane")
	}
	if c.TornadoRisk {
		risks = append(risks, "tornado")
	}
	if c.HailRisk {
		risks = append(risks, "hail")
	}
	if len(risks) > 0 {
		fmt.Fprintf(b, "- Elevated risks: %s\n", strings.Join(risks, ", "))
	}
	b.WriteString("\n")
}

func writeItems(b *strings.Builder, heading string, items []models.InventoryItem, homeYear int, now time.Time) {
	b.WriteString(heading + "\n")
	if len(items) == 0 {
		b.WriteString(notRecorded + "\n\n")
		return
	}
	for _, item := range items {
		writeItem(b, item, homeYear, now)
	}
	b.WriteString("\n")
}

func writeItem(b *strings.Builder, item models.InventoryItem, homeYear int, now time.Time) {
	label := item.Type
	if item.Name != "" && !strings.EqualFold(item.Name, item.Type) {
		label = item.Type + ": " + item.Name
	}
	if maker := joinNonEmpty(" ", item.Brand, item.Model); maker != "" {
		label += " (" + maker + ")"
	}
	fmt.Fprintf(b, "- %s\n", label)
	subfield(b, "Material", item.Material)
	subfield(b, "Location", item.Location)
	subfield(b, "Condition", item.Condition)

	age, known := ItemAge(item, homeYear, now)
	if item.InstallDate != nil {
		fmt.Fprintf(b, "  - Installed: %s (%d years ago)\n", item.InstallDate.Format(dateLayout), age)
	} else if known {
		fmt.Fprintf(b, "  - Estimated age: %d years (assumed original to the home)\n", age)
	}
	if item.ExpectedLifespan > 0 {
		fmt.Fprintf(b, "  - Expected lifespan: %d years\n", item.ExpectedLifespan)
		if known {
			fmt.Fprintf(b, "  - Lifespan used: %d%%\n", LifespanPercent(age, item.ExpectedLifespan))
		}
	}
	if item.LastServiced != nil {
		fmt.Fprintf(b, "  - Last serviced: %s\n", item.LastServiced.Format(dateLayout))
	}
	subfield(b, "Notes", item.Notes)
	if known {
		for _, w := range Warnings(item, age) {
			fmt.Fprintf(b, "  - WARNING: %s\n", w)
		}
	}
}

func writePolicy(b *strings.Builder) {
	b.WriteString(HeadingPolicy + "\n")
	b.WriteString(`1. Predictive maintenance: prioritize items near or past their expected lifespan and anything flagged with a WARNING. Schedule inspections before likely failure, and include replacement planning for items above 80% of lifespan.
2. Dependency ordering: when one task must happen before another (for example, inspect before repair, repair before repaint), list the prerequisite first and name it in "dependsOn".
3. Seasonal timing: schedule exterior, roofing, and HVAC work for the appropriate season in this climate. Prepare for storms, freezes, and heat before they arrive.
4. Use the climate context to adjust frequency for storm exposure, rainfall, snowfall, and wind.
5. Mark tasks a homeowner can safely do as DIY; mark work requiring a licensed professional or permit accordingly.

`)
}

func writeOutputFormat(b *strings.Builder) {
	b.WriteString(HeadingOutput + "\n")
	b.WriteString(`Respond with only a JSON array, no prose and no code fences. Each element must have exactly these fields:
[
  {
    "name": "short task title",
    "description": "what to do and why",
    "category": "HVAC | PLUMBING | EXTERIOR | STRUCTURAL | LANDSCAPING | APPLIANCE | SAFETY | ELECTRICAL | OTHER",
    "frequency": "WEEKLY | MONTHLY | QUARTERLY | BIANNUAL | ANNUAL | SEASONAL | AS_NEEDED",
    "priority": "critical | high | medium | low",
    "nextDueDate": "YYYY-MM-DD",
    "estimatedCost": 0,
    "estimatedHours": 0,
    "isDiy": true,
    "relatedItem": "inventory item this task maintains",
    "dependsOn": ["names of tasks that must be done first"],
    "permitRequired": false
  }
]
`)
}

// ItemAge returns the item's age in whole years. Items without an install date are
// assumed original to the home when the build year is known.
func ItemAge(item models.InventoryItem, homeYear int, now time.Time) (int, bool) {
	if item.InstallDate != nil {
		return wholeYears(*item.InstallDate, now), true
	}
	if homeYear > 0 {
		return max(0, now.Year()-homeYear), true
	}
	return 0, false
}

func wholeYears(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return max(0, years)
}

// LifespanPercent is age over expected lifespan, as a rounded percentage.
func LifespanPercent(age, lifespan int) int {
	if lifespan <= 0 {
		return 0
	}
	return int(math.Round(float64(age) / float64(lifespan) * 100))
}

// Warnings returns material-specific end-of-life warnings for an item of the given age.
func Warnings(item models.InventoryItem, age int) []string {
	material := strings.ToLower(item.Material)
	kind := strings.ToLower(item.Type + " " + item.Name)

	var out []string
	isPlumbing := strings.Contains(kind, "plumb") || strings.Contains(kind, "pipe") || strings.Contains(kind, "water line")
	if strings.Contains(material, "copper") && isPlumbing && age >= CopperPlumbingWarnAge {
		out = append(out, fmt.Sprintf("copper plumbing is %d years old; inspect for pinhole leaks, corrosion, and failing joints", age))
	}
	if strings.Contains(material, "asphalt") && strings.Contains(kind, "roof") && age >= AsphaltRoofWarnAge {
		out = append(out, fmt.Sprintf("asphalt roof is %d years old, at or beyond typical service life; plan inspection and replacement", age))
	}
	return out
}

func field(b *strings.Builder, name, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "- %s: %s\n", name, value)
	}
}

func subfield(b *strings.Builder, name, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "  - %s: %s\n", name, value)
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
