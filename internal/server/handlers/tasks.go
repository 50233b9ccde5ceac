package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stuxbench/stux/internal/api"
)

// ListTasks handles POST /api/tasks/list.
//
// Returns every registered benchmark task, sorted by ID.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	specs := h.taskRegistry.List()
	taskList := make([]api.Task, 0, len(specs))
	for _, spec := range specs {
		taskList = append(taskList, spec.ToAPI())
	}

	h.WriteJSON(w, api.ListTasksResponse{Tasks: taskList}, http.StatusOK)
}

// ShowTask handles POST /api/tasks/show.
func (h *Handler) ShowTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.ShowTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		h.WriteError(w, "task id is required", http.StatusBadRequest)
		return
	}

	spec, err := h.taskRegistry.Get(req.ID)
	if err != nil {
		h.WriteError(w, err.Error(), http.StatusNotFound)
		return
	}

	h.WriteJSON(w, spec.ToAPI(), http.StatusOK)
}
