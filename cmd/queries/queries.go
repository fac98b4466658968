// Package queries implements commands for inspecting query sets.
package queries

import "github.com/spf13/cobra"

// Command returns the queries command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Inspect query sets",
		Long:  `Inspect the query sets configured in the query sets file.`,
	}

	cmd.AddCommand(newListCommand())
	return cmd
}
