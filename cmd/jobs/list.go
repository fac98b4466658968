package jobs

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cicconel11/TruthLayer-sub001/cmd/common"
	"github.com/cicconel11/TruthLayer-sub001/internal/scheduler"
)

// newListCommand creates the list command.
func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs with their effective configuration",
		Long: `List the engine's default scheduled jobs after applying the overrides from
the configuration file, including each enabled job's next firing time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			specs := scheduler.ApplyOverrides(scheduler.DefaultJobs(), deps.Config.Scheduler.Jobs)
			renderJobsTable(specs)
			return nil
		},
	}
}

// renderJobsTable formats and displays the job specs in a table.
func renderJobsTable(specs []scheduler.JobSpec) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Cron", "Enabled", "Critical", "Next Run"})

	now := time.Now()
	for _, spec := range specs {
		t.AppendRow(table.Row{
			spec.ID,
			spec.Name,
			spec.Cron,
			spec.Enabled,
			spec.Critical,
			nextRunLabel(spec, now),
		})
	}

	t.Render()
}

// nextRunLabel computes the next firing time for an enabled job.
func nextRunLabel(spec scheduler.JobSpec, from time.Time) string {
	if !spec.Enabled {
		return "-"
	}
	runs, err := scheduler.NextRuns(spec.Cron, from, 1)
	if err != nil || len(runs) == 0 {
		return "invalid cron"
	}
	return runs[0].Format(time.RFC3339)
}
