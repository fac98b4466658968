package cycles

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cicconel11/TruthLayer-sub001/cmd/common"
	"github.com/cicconel11/TruthLayer-sub001/internal/bootstrap"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/queries"
)

// newValidateCommand creates the validate command.
func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate cycle configuration against the query sets file",
		Long: `Validate that every configured cycle passes its own checks and references
a query set that exists in the query sets file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			cycles := deps.Config.Orchestrator.Cycles
			if len(cycles) == 0 {
				deps.Logger.Info("no cycles configured")
				return nil
			}

			provider := queries.NewFileProvider(deps.Config.Queries.File, deps.Logger)
			if err := provider.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load query sets: %w", err)
			}
			known := make(map[string]bool)
			for _, set := range provider.Sets() {
				known[set.ID] = true
			}

			invalid := 0
			for _, cc := range cycles {
				cycle, convErr := bootstrap.CycleFromConfig(cc)
				if convErr != nil {
					deps.Logger.Error("invalid cycle",
						logger.String("cycle_id", cc.ID),
						logger.Error(convErr))
					invalid++
					continue
				}
				if validateErr := cycle.Validate(); validateErr != nil {
					deps.Logger.Error("invalid cycle",
						logger.String("cycle_id", cc.ID),
						logger.Error(validateErr))
					invalid++
					continue
				}
				if !known[cycle.QuerySet] {
					deps.Logger.Error("cycle references unknown query set",
						logger.String("cycle_id", cc.ID),
						logger.String("query_set", cycle.QuerySet))
					invalid++
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d cycles failed validation", invalid, len(cycles))
			}
			deps.Logger.Info("all cycles valid", logger.Int("cycles", len(cycles)))
			return nil
		},
	}
}
