// Package regulation resolves the building-code, safety, and disclosure rules that apply
// to a home from static state, locality, and federal tables.
package regulation

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/home-maintenance-service/internal/climate"
	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

//go:embed rules.yaml
var defaultRules []byte

type locality struct {
	Cities      []string                 `yaml:"cities"`
	Counties    []string                 `yaml:"counties"`
	Regulations []models.LocalRegulation `yaml:"regulations"`
}

type ruleSet struct {
	Federal    []models.LocalRegulation            `yaml:"federal"`
	MostStates []models.LocalRegulation            `yaml:"most_states"`
	States     map[string][]models.LocalRegulation `yaml:"states"`
	Localities []locality                          `yaml:"localities"`
}

// Resolver holds parsed rule tables. It is immutable and safe for concurrent use.
type Resolver struct {
	federal    []models.LocalRegulation
	mostStates []models.LocalRegulation
	states     map[string][]models.LocalRegulation
	localities []locality
}

// Load parses a YAML rule document.
func Load(data []byte) (*Resolver, error) {
	var rs ruleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse regulation rules: %w", err)
	}

	r := &Resolver{
		federal:    rs.Federal,
		mostStates: rs.MostStates,
		states:     make(map[string][]models.LocalRegulation, len(rs.States)),
	}
	for code, regs := range rs.States {
		key := climate.NormalizeState(code)
		if len(key) != 2 {
			return nil, fmt.Errorf("parse regulation rules: invalid state key %q", code)
		}
		r.states[key] = append(r.states[key], regs...)
	}
	for i, loc := range rs.Localities {
		if len(loc.Cities) == 0 && len(loc.Counties) == 0 {
			return nil, fmt.Errorf("parse regulation rules: locality %d has no cities or counties", i)
		}
		r.localities = append(r.localities, locality{
			Cities:      lowerAll(loc.Cities),
			Counties:    lowerAll(loc.Counties),
			Regulations: loc.Regulations,
		})
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultResolver *Resolver
)

// Default returns the Resolver for the embedded rule tables.
func Default() *Resolver {
	defaultOnce.Do(func() {
		r, err := Load(defaultRules)
		if err != nil {
			panic(err)
		}
		defaultResolver = r
	})
	return defaultResolver
}

// Resolve returns Default().Resolve(city, state, zipCode, county).
func Resolve(city, state, zipCode, county string) []models.LocalRegulation {
	return Default().Resolve(city, state, zipCode, county)
}

// Resolve unions the state, locality, and federal tables for a location. The "most states"
// entries are always appended to the state tier. Order is not significant and duplicates
// across tiers are kept. Missing city, state, or ZIP yields an empty list.
func (r *Resolver) Resolve(city, state, zipCode, county string) []models.LocalRegulation {
	city = strings.ToLower(strings.TrimSpace(city))
	county = strings.ToLower(strings.TrimSpace(county))
	st := climate.NormalizeState(state)
	if city == "" || st == "" || strings.TrimSpace(zipCode) == "" {
		return []models.LocalRegulation{}
	}

	var out []models.LocalRegulation
	out = append(out, r.states[st]...)
	out = append(out, r.mostStates...)
	for _, loc := range r.localities {
		if loc.matches(city, county) {
			out = append(out, loc.Regulations...)
		}
	}
	out = append(out, r.federal...)
	return out
}

func (l locality) matches(city, county string) bool {
	for _, c := range l.Cities {
		if strings.Contains(city, c) {
			return true
		}
	}
	if county == "" {
		return false
	}
	for _, c := range l.Counties {
		if strings.Contains(county, c) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
