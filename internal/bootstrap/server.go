package bootstrap

import (
	"github.com/cicconel11/TruthLayer-sub001/internal/api"
	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

// SetupServer builds and starts the HTTP API server. The returned channel
// reports a startup or serve failure. Both returns are nil when the server is
// disabled; a nil channel blocks forever, which is what the run loop wants.
func SetupServer(cfg *config.Config, log logger.Logger, engine *Engine, debug bool) (*api.Server, <-chan error) {
	if !cfg.ServerEnabled() {
		log.Info("http api disabled by config")
		return nil, nil
	}

	router := api.NewRouter(api.Deps{
		Queue:        engine.Queue,
		Scheduler:    engine.Scheduler,
		Orchestrator: engine.Orchestrator,
		Metrics:      engine.Recorder.Handler(),
		Logger:       log,
		Debug:        debug,
	})

	server := api.NewServer(cfg.Server, router, log)
	return server, server.StartAsync()
}
