package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/pkg/logger"
)

var (
	log     = logger.Component("api")
	timeNow = time.Now
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, h *Handlers, hc *HealthChecker) *Server {
	handler := SetupRoutes(h, hc, cfg.AllowedOrigins)
	return &Server{
		config:  cfg,
		handler: handler,
		server: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			// Synchronous dispatch may wait on a slow provider.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	log.Info("listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
