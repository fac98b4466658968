// Package serve implements the engine daemon command.
package serve

import (
	"github.com/spf13/cobra"

	"github.com/cicconel11/TruthLayer-sub001/cmd/common"
	"github.com/cicconel11/TruthLayer-sub001/internal/bootstrap"
)

// Command returns the serve command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration engine",
		Long: `Run the orchestration engine as a long-lived service: the job queue, the
cron scheduler, the collection orchestrator, and the HTTP API. The process
runs until it receives SIGINT or SIGTERM, then shuts down gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.Run(bootstrap.Options{
				ConfigPath: common.ConfigPath(),
				Debug:      common.Debug(),
			})
		},
	}
}
