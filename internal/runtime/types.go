// Package runtime manages benchmark environment containers.
//
// An environment is one Docker container built from a task's image. It runs
// the environment-init process and the MCP controller, and carries labels
// that let the manager rediscover it after a server restart.
package runtime

import (
	"io"
	"time"

	"github.com/stuxbench/stux/internal/api"
)

// EnvironmentState represents the lifecycle state of an environment.
type EnvironmentState string

const (
	StateCreating EnvironmentState = "creating"
	StateCreated  EnvironmentState = "created"
	StateStarting EnvironmentState = "starting"
	StateRunning  EnvironmentState = "running"
	StateReady    EnvironmentState = "ready"
	StateStopped  EnvironmentState = "stopped"
	StateError    EnvironmentState = "error"
	StateUnknown  EnvironmentState = "unknown"
)

// Container labels used for discovery and filtering.
const (
	LabelEnvironment = "stux.environment"
	LabelTask        = "stux.task"
	LabelServer      = "stux.server"
	LabelImage       = "stux.image"
)

// Environment is the tracked metadata for one environment container.
type Environment struct {
	// ID is the unique environment identifier, also used as container name.
	ID string

	// TaskID is the benchmark task this environment was created for.
	TaskID string

	// Image is the container image the environment runs.
	Image string

	// State is the last observed lifecycle state.
	State EnvironmentState

	// CreatedAt/StartedAt/StoppedAt are lifecycle timestamps.
	CreatedAt time.Time
	StartedAt time.Time
	StoppedAt time.Time

	// Error holds details when State is StateError.
	Error string

	// Metadata carries implementation details such as the container ID.
	Metadata map[string]string
}

// snapshot copies the environment so callers can read it without holding
// the manager's lock.
func (e *Environment) snapshot() *Environment {
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// ContainerID returns the Docker container ID backing this environment.
func (e *Environment) ContainerID() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata["container_id"]
}

// ToAPI converts the environment to its API representation.
func (e *Environment) ToAPI() api.Environment {
	return api.Environment{
		ID:          e.ID,
		TaskID:      e.TaskID,
		Image:       e.Image,
		State:       api.EnvironmentState(e.State),
		ContainerID: e.ContainerID(),
		CreatedAt:   e.CreatedAt,
		StartedAt:   e.StartedAt,
		Error:       e.Error,
	}
}

// CreateParams carries everything needed to create an environment container.
type CreateParams struct {
	// EnvironmentID names the environment and its container.
	EnvironmentID string

	// TaskID selects the benchmark task.
	TaskID string

	// Image is the container image to run.
	Image string

	// ServerName tags the container with the owning server.
	ServerName string

	// Environment is extra environment variables for the container.
	Environment map[string]string

	// EnginePort, when positive, publishes the in-container inference API
	// (port 8000) on this host port.
	EnginePort int

	// EventChannel receives human-readable progress messages when non-nil.
	EventChannel chan<- string
}

// LogStream is a readable log source that must be closed by the consumer.
// The data carries Docker's stream multiplexing headers; use stdcopy to
// split stdout and stderr.
type LogStream interface {
	io.ReadCloser
}
