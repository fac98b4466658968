package cycles

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/cicconel11/TruthLayer-sub001/cmd/common"
	"github.com/cicconel11/TruthLayer-sub001/internal/bootstrap"
	"github.com/cicconel11/TruthLayer-sub001/internal/orchestrator"
)

const shutdownTimeout = 30 * time.Second

// newRunCommand creates the run command.
func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [cycle-id]",
		Short: "Run one collection cycle to completion",
		Long: `Run a single collection cycle immediately and wait for it to finish. The
cycle must be declared in the configuration file. The command starts the
engine without the HTTP API, executes the cycle, prints a summary, and exits
non-zero if the cycle did not complete.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			return runCycle(cmd.Context(), deps, args[0])
		},
	}
}

// runCycle boots the engine, executes the named cycle, and waits for the
// execution to settle.
func runCycle(ctx context.Context, deps *bootstrap.CommandDeps, cycleID string) error {
	engine, err := bootstrap.SetupEngine(deps.Config, deps.Logger, bootstrap.Collaborators{})
	if err != nil {
		return fmt.Errorf("failed to set up engine: %w", err)
	}
	if _, ok := engine.Orchestrator.GetCycle(cycleID); !ok {
		return fmt.Errorf("no cycle configured with id %s", cycleID)
	}

	if err = engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		engine.Stop(stopCtx)
	}()

	executionID, err := engine.Orchestrator.ExecuteCycle(cycleID)
	if err != nil {
		return fmt.Errorf("failed to execute cycle: %w", err)
	}

	exec, err := waitForExecution(ctx, engine, executionID)
	if err != nil {
		return err
	}

	renderExecutionSummary(exec)
	if exec.Status != orchestrator.StatusCompleted {
		return fmt.Errorf("cycle execution %s %s", executionID, exec.Status)
	}
	return nil
}

// waitForExecution polls until the execution reaches a terminal status.
func waitForExecution(ctx context.Context, engine *bootstrap.Engine, executionID string) (*orchestrator.Execution, error) {
	ticker := time.NewTicker(engine.Config.Orchestrator.PollInterval)
	defer ticker.Stop()

	for {
		exec := engine.Orchestrator.GetExecutionStatus(executionID)
		if exec == nil {
			return nil, fmt.Errorf("execution %s disappeared", executionID)
		}
		if exec.Status.IsTerminal() {
			return exec, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// renderExecutionSummary displays the finished execution in a table.
func renderExecutionSummary(exec *orchestrator.Execution) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Execution", "Status", "Queries", "Completed", "Failed", "Results", "Duration"})
	t.AppendRow(table.Row{
		exec.ID,
		string(exec.Status),
		exec.Progress.TotalQueries,
		exec.Progress.CompletedQueries,
		exec.Progress.FailedQueries,
		exec.Progress.TotalResults,
		executionDuration(exec).Round(time.Millisecond),
	})
	t.Render()
}

func executionDuration(exec *orchestrator.Execution) time.Duration {
	if exec.CompletedAt != nil {
		return exec.CompletedAt.Sub(exec.StartedAt)
	}
	return time.Since(exec.StartedAt)
}
