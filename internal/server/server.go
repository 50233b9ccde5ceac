// Package server provides the controller HTTP server.
//
// The server exposes the benchmark API consumed by the stux CLI: task
// listing, environment lifecycle (with SSE progress streaming for long
// operations like image builds), log streaming and grading. It is designed
// to run as a long-lived daemon next to the Docker host.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/logger"
	"github.com/stuxbench/stux/internal/runtime"
	"github.com/stuxbench/stux/internal/server/handlers"
	"github.com/stuxbench/stux/internal/tasks"
)

// Server is the HTTP server handling API requests from clients.
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	taskRegistry   *tasks.Registry
	runtimeManager *runtime.Manager
	version        string
	buildTime      string
}

// NewServer creates a server ready to Start.
func NewServer(cfg *config.Config, runtimeMgr *runtime.Manager, version string) *Server {
	return &Server{
		config:         cfg,
		taskRegistry:   tasks.DefaultRegistry(),
		runtimeManager: runtimeMgr,
		version:        version,
		buildTime:      time.Now().Format(time.RFC3339),
	}
}

// Start configures routes and blocks serving HTTP until Stop is called.
// Returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	h := handlers.NewHandler(
		s.config,
		s.taskRegistry,
		s.runtimeManager,
		s.version,
		s.buildTime,
	)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", h.Health)
	mux.HandleFunc("/api/version", h.Version)

	mux.HandleFunc("/api/tasks/list", h.ListTasks)
	mux.HandleFunc("/api/tasks/show", h.ShowTask)

	mux.HandleFunc("/api/environments/up", h.UpEnvironment)
	mux.HandleFunc("/api/environments/list", h.ListEnvironments)
	mux.HandleFunc("/api/environments/stop", h.StopEnvironment)
	mux.HandleFunc("/api/environments/remove", h.RemoveEnvironment)
	mux.HandleFunc("/api/environments/logs", h.StreamLogs)

	mux.HandleFunc("/api/grade", h.Grade)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.loggingMiddleware(mux),
		// No read/write timeouts: image builds and log follows stream for
		// a long time over a single response.
		IdleTimeout: 120 * time.Second,
	}

	logger.Info("Starting stux server on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server, honoring the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("Shutting down server...")
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware logs each request with client address and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Info("%s %s %s", r.RemoteAddr, r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debug("Completed in %v", time.Since(start))
	})
}
