package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/validation"
)

func newPromptCmd(opts *rootOptions) *cobra.Command {
	var (
		inPath   string
		generate bool
	)
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Build the task-generation prompt for a home inventory",
		Long: `Read a home inventory as JSON and print the task-generation prompt.
With --generate, send the prompt to the model and print the task plan instead.

Example:
  homecare prompt --in home.json
  cat home.json | homecare prompt --generate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inv, err := readInventory(cmd.InOrStdin(), inPath)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if !generate {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), a.svc.BuildPrompt(cmd.Context(), inv))
				return err
			}
			plan, err := a.svc.GenerateTaskPlan(cmd.Context(), inv)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), plan)
		},
	}
	cmd.Flags().StringVarP(&inPath, "in", "i", "", "Inventory JSON file (default stdin)")
	cmd.Flags().BoolVar(&generate, "generate", false, "Generate tasks with the configured model")
	return cmd
}

func readInventory(stdin io.Reader, path string) (models.HomeInventory, error) {
	var inv models.HomeInventory
	r := stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return inv, fmt.Errorf("open inventory: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&inv); err != nil {
		return inv, fmt.Errorf("decode inventory: %w", err)
	}
	if err := validation.Struct(inv); err != nil {
		return inv, err
	}
	return inv, nil
}
