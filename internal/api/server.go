package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"leviatan/internal/analysis"
	"leviatan/internal/insights"
	"leviatan/internal/jobs"
	"leviatan/internal/progress"
	"leviatan/internal/scheduler"
	"leviatan/internal/session"
	"leviatan/internal/slogutil"
	"leviatan/internal/watcher"
)

// Deps are the daemon components the HTTP facade exposes. Scheduler and
// Watcher may be nil when those subsystems are disabled; the status
// handler reports them as off.
type Deps struct {
	Coordinator *analysis.Coordinator
	Insights    *insights.Store
	Sessions    *session.Tracker
	Publisher   *progress.Publisher
	Jobs        *jobs.Runner
	Scheduler   *scheduler.Scheduler
	Watcher     *watcher.Watcher
}

// Server represents the HTTP API server
type Server struct {
	router *http.ServeMux
	server *http.Server
	addr   string
	logger *slog.Logger
	deps   Deps

	started time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	s := &Server{
		addr:    addr,
		logger:  logger,
		deps:    deps,
		router:  http.NewServeMux(),
		started: time.Now(),
	}

	// Register routes
	s.registerRoutes()

	// Create HTTP server with configured router and middleware.
	// WriteTimeout stays at zero because progress event streams hold
	// their connection open for as long as an analysis runs.
	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting http server", "addr", s.addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}
