package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"wafleet/internal/app/config"
	"wafleet/pkg/logger"
)

// Server encapsula o servidor HTTP da API de frota e seu desligamento
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// New cria o servidor HTTP sobre o handler montado pelo router
func New(cfg *config.Config, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.App.Host, cfg.App.Port),
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: log.WithComponent("http-server"),
	}
}

// Start bloqueia servindo requisições até Stop (ou um erro de listen)
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info().Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop drena as requisições em voo dentro do prazo do contexto
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped gracefully")
	return nil
}
