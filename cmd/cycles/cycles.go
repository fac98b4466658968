// Package cycles implements commands for managing collection cycles.
package cycles

import "github.com/spf13/cobra"

// Command returns the cycles command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "Manage collection cycles",
		Long: `Manage the collection cycles declared in the configuration file. A cycle
describes which query set to collect, from which engines, and with what
priority and retry policy.`,
	}

	cmd.AddCommand(
		newListCommand(),
		newValidateCommand(),
		newRunCommand(),
	)
	return cmd
}
