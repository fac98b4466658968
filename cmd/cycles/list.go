package cycles

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cicconel11/TruthLayer-sub001/cmd/common"
	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/queries"
)

// newListCommand creates the list command.
func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured collection cycles",
		Long:  `List the collection cycles declared in the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			if len(deps.Config.Orchestrator.Cycles) == 0 {
				deps.Logger.Info("no cycles configured")
				return nil
			}

			renderCyclesTable(deps.Config.Orchestrator.Cycles, deps.Config.Orchestrator.Engines)
			return nil
		},
	}
}

// renderCyclesTable formats and displays the cycles in a table.
func renderCyclesTable(cycles []config.CycleConfig, defaultEngines []string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Query Set", "Queries", "Engines", "Priority", "Rotation"})

	for _, c := range cycles {
		engines := c.Engines
		if len(engines) == 0 {
			engines = defaultEngines
		}
		priority := c.Priority
		if priority == "" {
			priority = "normal"
		}
		rotation := c.RotationStrategy
		if rotation == "" {
			rotation = queries.RotationRoundRobin
		}

		t.AppendRow(table.Row{
			c.ID,
			c.Name,
			c.QuerySet,
			c.QueryCount,
			strings.Join(engines, ", "),
			priority,
			rotation,
		})
	}

	t.Render()
}
