package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCacheCmd(opts *rootOptions) *cobra.Command {
	var zip string
	cmd := &cobra.Command{
		Use:   "sweep-cache",
		Short: "Remove expired ZIP cache entries",
		Long: `Remove expired entries from the configured ZIP cache backend.
With --zip, drop that single entry regardless of age.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if zip != "" {
				if !a.svc.InvalidateZip(cmd.Context(), zip) {
					return errors.New("cache disabled")
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", zip)
				return err
			}
			n := a.svc.SweepCache(cmd.Context())
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&zip, "zip", "", "Invalidate a single ZIP instead of sweeping")
	return cmd
}
