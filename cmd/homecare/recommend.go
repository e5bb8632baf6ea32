package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/validation"
)

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	var loc models.HomeLocation
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print the maintenance recommendation for a location",
		Long: `Resolve climate and storm risk for a home location, match local regulations,
and print the resulting recommendation as JSON.

Example:
  homecare recommend --city Miami --state FL --zip 33101 --year-built 1985`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checked, err := checkLocation(loc)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			rec := a.svc.Recommend(cmd.Context(), checked)
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}

	f := cmd.Flags()
	f.StringVar(&loc.City, "city", "", "City name")
	f.StringVar(&loc.State, "state", "", "State code or name")
	f.StringVar(&loc.ZipCode, "zip", "", "ZIP code")
	f.StringVar(&loc.County, "county", "", "County name")
	f.IntVar(&loc.YearBuilt, "year-built", 0, "Year the home was built")
	f.StringVar(&loc.HomeType, "home-type", "", "Home type, e.g. single_family")
	f.Float64Var(&loc.Lat, "lat", 0, "Latitude")
	f.Float64Var(&loc.Lon, "lon", 0, "Longitude")
	f.StringVar(&loc.HomeID, "home-id", "", "Home UUID used to key published tasks")
	return cmd
}

// checkLocation validates loc and returns it with trimmed city and ZIP and the state as a
// postal code.
func checkLocation(loc models.HomeLocation) (models.HomeLocation, error) {
	if loc.City == "" && loc.State == "" && loc.ZipCode == "" {
		return loc, errors.New("at least one of --city, --state, or --zip is required")
	}
	var err error
	if loc.City, err = validation.ValidateCity(loc.City); err != nil {
		return loc, err
	}
	if loc.State, err = validation.ValidateState(loc.State); err != nil {
		return loc, err
	}
	if loc.ZipCode, err = validation.ValidateZip(loc.ZipCode); err != nil {
		return loc, err
	}
	return loc, validation.Struct(loc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
