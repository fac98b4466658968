// Package jobs implements commands for inspecting scheduled jobs.
package jobs

import "github.com/spf13/cobra"

// Command returns the jobs command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect scheduled jobs",
		Long: `Inspect the engine's scheduled jobs as the current configuration defines
them: the default job set with any overrides from the config file applied.`,
	}

	cmd.AddCommand(newListCommand())
	return cmd
}
