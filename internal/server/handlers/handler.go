// Package handlers implements the controller API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/stuxbench/stux/internal/api"
	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/logger"
	"github.com/stuxbench/stux/internal/runtime"
	"github.com/stuxbench/stux/internal/tasks"
)

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	config         *config.Config
	taskRegistry   *tasks.Registry
	runtimeManager *runtime.Manager
	version        string
	buildTime      string
}

// NewHandler creates the handler with its dependencies.
func NewHandler(cfg *config.Config, registry *tasks.Registry, runtimeMgr *runtime.Manager, version, buildTime string) *Handler {
	return &Handler{
		config:         cfg,
		taskRegistry:   registry,
		runtimeManager: runtimeMgr,
		version:        version,
		buildTime:      buildTime,
	}
}

// WriteJSON serializes v as the response body with the given status code.
func (h *Handler) WriteJSON(w http.ResponseWriter, v interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

// WriteError sends a standard error payload.
func (h *Handler) WriteError(w http.ResponseWriter, message string, status int) {
	h.WriteJSON(w, api.ErrorResponse{Error: message, Code: status}, status)
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, api.HealthResponse{
		Status:  "ok",
		Version: h.version,
	}, http.StatusOK)
}

// Version handles GET /api/version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, api.VersionResponse{
		Version:   h.version,
		BuildTime: h.buildTime,
	}, http.StatusOK)
}
