// Package bootstrap assembles and runs the orchestration engine.
//
// Assembly follows these phases:
//   - Phase 1: Config & Logger - load configuration and create the logger
//   - Phase 2: Engine - build the bus, queue, scheduler, collector, and orchestrator
//   - Phase 3: Wiring - register cycles, bind the default job set, start components
//   - Phase 4: Server - create and start the HTTP API server (if enabled)
//   - Phase 5: Run - wait for an interrupt signal or a server error
package bootstrap

import (
	"context"
	"fmt"
)

// Options adjust how the engine is assembled and run.
type Options struct {
	// ConfigPath is the engine configuration file. Empty falls back to
	// config.yml, or built-in defaults when no file exists there.
	ConfigPath string
	// Debug switches the logger and HTTP router to debug output.
	Debug bool
	// Collaborators are optional platform services driven by default jobs.
	Collaborators Collaborators
}

// Run assembles the engine and blocks until it is interrupted or fails.
func Run(opts Options) error {
	// Phase 1: config and logger
	deps, err := NewCommandDeps(opts.ConfigPath, opts.Debug)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() { _ = deps.Logger.Sync() }()

	// Phase 2 and 3: build and start the engine
	engine, err := SetupEngine(deps.Config, deps.Logger, opts.Collaborators)
	if err != nil {
		return fmt.Errorf("setup engine: %w", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	// Phase 4: HTTP API server
	server, errCh := SetupServer(deps.Config, deps.Logger, engine, opts.Debug)

	// Phase 5: run until interrupt or server error
	return RunUntilInterrupt(deps.Logger, engine, server, errCh)
}
