package queries

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cicconel11/TruthLayer-sub001/cmd/common"
	queriespkg "github.com/cicconel11/TruthLayer-sub001/internal/queries"
)

// newListCommand creates the list command.
func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List query sets from the query sets file",
		Long:  `List every query set in the query sets file with its size and categories.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			provider := queriespkg.NewFileProvider(deps.Config.Queries.File, deps.Logger)
			if err := provider.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load query sets: %w", err)
			}

			renderSetsTable(provider.Sets())
			return nil
		},
	}
}

// renderSetsTable formats and displays the query sets in a table.
func renderSetsTable(sets []queriespkg.SetInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Queries", "Categories"})

	for _, set := range sets {
		t.AppendRow(table.Row{
			set.ID,
			set.Name,
			set.QueryCount,
			strings.Join(set.Categories, ", "),
		})
	}

	t.Render()
}
