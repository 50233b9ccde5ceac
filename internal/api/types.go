// Package api defines the API types and contracts for the stux application.
//
// This package contains the data structures exchanged between the CLI client
// and the controller HTTP server. It defines:
//   - Request and response types for all API endpoints
//   - Task and environment type definitions
//   - Error response structures
//
// All types in this package are designed to be JSON-serializable for easy
// HTTP transmission.
package api

import "time"

// EnvironmentState represents the lifecycle state of a task environment
// container as reported by the controller.
type EnvironmentState string

const (
	EnvStateCreating EnvironmentState = "creating"
	EnvStateCreated  EnvironmentState = "created"
	EnvStateStarting EnvironmentState = "starting"
	EnvStateRunning  EnvironmentState = "running"
	EnvStateReady    EnvironmentState = "ready"
	EnvStateStopped  EnvironmentState = "stopped"
	EnvStateError    EnvironmentState = "error"
	EnvStateUnknown  EnvironmentState = "unknown"
)

// Task describes a benchmark task as exposed over the API.
//
// A task pairs a vulnerable source checkout with the branches and test
// command needed to set it up and grade a patch attempt.
type Task struct {
	// ID is the unique task identifier (e.g., "cve-2025-32444").
	ID string `json:"id"`

	// CVE is the CVE identifier this task covers (e.g., "CVE-2025-32444").
	CVE string `json:"cve"`

	// Description is a human-readable summary of the vulnerability.
	Description string `json:"description"`

	// RepoURL is the git remote holding the vulnerable source.
	RepoURL string `json:"repo_url"`

	// DefaultBranch is the branch used for initial workspace setup.
	DefaultBranch string `json:"default_branch"`

	// TestBranch is the branch carrying the hidden security tests.
	TestBranch string `json:"test_branch"`

	// WorkspaceDir is the path of the task workspace inside the environment.
	WorkspaceDir string `json:"workspace_dir"`

	// Image is the task environment image tag, if one has been built.
	Image string `json:"image,omitempty"`
}

// Environment describes a running (or stopped) task environment container.
type Environment struct {
	ID          string           `json:"id"`
	TaskID      string           `json:"task_id"`
	State       EnvironmentState `json:"state"`
	Image       string           `json:"image"`
	ContainerID string           `json:"container_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   time.Time        `json:"started_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// VersionResponse is returned by GET /api/version.
type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// ErrorResponse is the standard error payload for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// ListTasksResponse is returned by POST /api/tasks/list.
type ListTasksResponse struct {
	Tasks []Task `json:"tasks"`
}

// ShowTaskRequest selects a single task by ID.
type ShowTaskRequest struct {
	ID string `json:"id"`
}

// UpEnvironmentRequest starts a new task environment.
type UpEnvironmentRequest struct {
	// TaskID selects which task environment to start.
	TaskID string `json:"task_id"`

	// Image overrides the task's configured environment image.
	Image string `json:"image,omitempty"`

	// Build requests an image build before the environment starts.
	Build bool `json:"build,omitempty"`

	// EnginePort publishes the in-container inference API on this host
	// port. Zero leaves the port unpublished.
	EnginePort int `json:"engine_port,omitempty"`
}

// UpEnvironmentResponse is the terminal payload of the up SSE stream.
type UpEnvironmentResponse struct {
	Environment Environment `json:"environment"`
}

// ListEnvironmentsResponse is returned by POST /api/environments/list.
type ListEnvironmentsResponse struct {
	Environments []Environment `json:"environments"`
}

// EnvironmentRequest addresses an environment by ID for stop/remove/logs.
type EnvironmentRequest struct {
	ID     string `json:"id"`
	Force  bool   `json:"force,omitempty"`
	Follow bool   `json:"follow,omitempty"`
}

// GradeRequest asks the controller to grade a patch attempt.
type GradeRequest struct {
	// TaskID selects the task whose grading procedure runs.
	TaskID string `json:"task_id"`

	// WorkspaceDir overrides the task's configured workspace path.
	WorkspaceDir string `json:"workspace_dir,omitempty"`
}

// SubGradeResult is one weighted component of a grade.
type SubGradeResult struct {
	Name     string                 `json:"name"`
	Score    float64                `json:"score"`
	Weight   float64                `json:"weight"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// GradeResponse is the grading verdict for a patch attempt.
type GradeResponse struct {
	TaskID    string           `json:"task_id"`
	Score     float64          `json:"score"`
	SubGrades []SubGradeResult `json:"sub_grades"`
}
