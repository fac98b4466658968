package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

const readHeaderTimeout = 10 * time.Second

// Server wraps the engine's HTTP server with lifecycle management.
type Server struct {
	server *http.Server
	logger logger.Logger
}

// NewServer creates the HTTP server serving the given handler.
func NewServer(cfg config.ServerConfig, handler http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}

	addr := cfg.Address
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: log,
	}
}

// Start runs the server until Shutdown. It blocks; a clean shutdown returns
// nil.
func (s *Server) Start() error {
	s.logger.Info("http server listening", logger.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// StartAsync runs the server in a goroutine. The returned channel yields any
// server error and closes when the server exits.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
