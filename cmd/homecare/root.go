package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	root string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "homecare",
		Short:         "Home maintenance recommendation service",
		Long:          "homecare derives climate, storm risk, local regulations, and maintenance tasks for a home location.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.root, "root", ".", "Directory containing config/{ENV_NAME}.yaml")

	cmd.AddCommand(
		newServeCmd(opts),
		newRecommendCmd(opts),
		newPromptCmd(opts),
		newSweepCacheCmd(opts),
	)
	return cmd
}
