package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stuxbench/stux/internal/api"
	"github.com/stuxbench/stux/internal/grading"
	"github.com/stuxbench/stux/internal/logger"
)

// gradeTimeout bounds one grading run: test branch checkout, fetch fallback
// and the test suite itself.
const gradeTimeout = 10 * time.Minute

// Grade handles POST /api/grade.
//
// Runs the task's grading procedure against a workspace on the controller
// host and returns the weighted grade.
func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.GradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		h.WriteError(w, "task_id is required", http.StatusBadRequest)
		return
	}

	task, err := h.taskRegistry.Get(req.TaskID)
	if err != nil {
		h.WriteError(w, err.Error(), http.StatusNotFound)
		return
	}

	workspaceDir := req.WorkspaceDir
	if workspaceDir == "" {
		workspaceDir = task.WorkspaceDir
	}

	logger.Info("Grading task %s in workspace %s", req.TaskID, workspaceDir)

	ctx, cancel := context.WithTimeout(r.Context(), gradeTimeout)
	defer cancel()

	grade, err := grading.GradeTask(ctx, task, workspaceDir, "")
	if err != nil {
		h.WriteError(w, fmt.Sprintf("Grading failed: %v", err), http.StatusInternalServerError)
		return
	}

	h.WriteJSON(w, grade.ToAPI(req.TaskID), http.StatusOK)
}
