package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/ragstream/internal/app"
	"github.com/ternarybob/ragstream/internal/common"
)

const defaultReadTimeout = 30 * time.Second

// Server manages the HTTP server and routes
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server

	// baseCtx parents every request context and is cancelled when shutdown begins
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		app: application,
	}

	s.router = s.setupRoutes()
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	// No WriteTimeout: chat responses stream for as long as the model produces output
	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.withMiddleware(s.router),
		ReadTimeout: common.ParseDuration(application.Config.Server.ReadTimeout, defaultReadTimeout),
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return s.baseCtx },
	}
	// Shutdown does not wait on hijacked WebSocket connections, so in-flight streams are cancelled instead
	s.server.RegisterOnShutdown(s.cancelBase)

	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
