package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cicconel11/TruthLayer-sub001/internal/api"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

const (
	signalChannelBufferSize = 1
	defaultShutdownTimeout  = 30 * time.Second
)

// RunUntilInterrupt blocks until an interrupt signal arrives or the HTTP
// server fails, then shuts the engine down. A nil server (API disabled) just
// leaves the run loop waiting on the signal.
func RunUntilInterrupt(log logger.Logger, engine *Engine, server *api.Server, errCh <-chan error) error {
	sigChan := make(chan os.Signal, signalChannelBufferSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case serverErr, ok := <-errCh:
		if ok && serverErr != nil {
			log.Error("server error", logger.Error(serverErr))
			Shutdown(log, engine, nil)
			return fmt.Errorf("server error: %w", serverErr)
		}
		// Channel closed without an error: the listener exited cleanly.
		Shutdown(log, engine, nil)
		return nil
	case sig := <-sigChan:
		log.Info("shutdown signal received", logger.String("signal", sig.String()))
		return Shutdown(log, engine, server)
	}
}

// Shutdown stops services in dependency order: the engine winds down first
// while the API keeps answering status reads, then the listener closes.
func Shutdown(log logger.Logger, engine *Engine, server *api.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	engine.Stop(ctx)

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to stop http server", logger.Error(err))
		return fmt.Errorf("stop http server: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
