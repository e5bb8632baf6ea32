package regulation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

// Home is the subset of home attributes applicability tags test.
type Home struct {
	YearBuilt int
	HomeType  string
}

var (
	preYearTag = regexp.MustCompile(`^pre-(\d{4})$`)
	minAgeTag  = regexp.MustCompile(`^(\d+)\+ years old$`)
)

var multiFamilyTypes = map[string]bool{
	"multi-family": true,
	"multifamily":  true,
	"duplex":       true,
	"triplex":      true,
	"fourplex":     true,
	"apartment":    true,
}

// Recommend keeps the regulations that apply to home. now anchors age tags.
func Recommend(regs []models.LocalRegulation, home Home, now time.Time) []models.LocalRegulation {
	out := make([]models.LocalRegulation, 0, len(regs))
	for _, reg := range regs {
		if Applies(reg, home, now) {
			out = append(out, reg)
		}
	}
	return out
}

// Applies reports whether reg applies to home. A regulation without tags always applies.
// A tag excludes only when its negative condition holds; unrecognized tags never exclude,
// and neither do age tags when the build year is unknown.
func Applies(reg models.LocalRegulation, home Home, now time.Time) bool {
	for _, tag := range reg.AppliesTo {
		if excludes(strings.ToLower(strings.TrimSpace(tag)), home, now) {
			return false
		}
	}
	return true
}

func excludes(tag string, home Home, now time.Time) bool {
	homeType := strings.ToLower(strings.TrimSpace(home.HomeType))

	if m := preYearTag.FindStringSubmatch(tag); m != nil {
		year, _ := strconv.Atoi(m[1])
		return home.YearBuilt != 0 && home.YearBuilt >= year
	}
	if m := minAgeTag.FindStringSubmatch(tag); m != nil {
		minAge, _ := strconv.Atoi(m[1])
		return home.YearBuilt != 0 && now.Year()-home.YearBuilt < minAge
	}
	switch tag {
	case "rental":
		return homeType != "rental"
	case "multi-family":
		return !multiFamilyTypes[homeType]
	}
	return false
}
