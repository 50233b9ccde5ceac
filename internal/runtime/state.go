package runtime

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/stuxbench/stux/internal/logger"
)

// ContainerStateInfo holds the result of container state inspection.
type ContainerStateInfo struct {
	// State is the mapped environment state.
	State EnvironmentState

	// ErrorMessage contains details when State is StateError.
	ErrorMessage string

	// ExitCode is only valid for exited containers.
	ExitCode int

	// IsRunning indicates whether the container is currently running.
	IsRunning bool
}

// InspectContainerState inspects a container and maps its Docker state onto
// the environment state model.
//
// Mapping rules:
//   - running            -> StateRunning
//   - created            -> StateCreated
//   - exited with code 0 -> StateStopped
//   - exited non-zero    -> StateError
//   - anything else      -> StateError with a descriptive message
func InspectContainerState(ctx context.Context, dockerClient *client.Client, containerID string) (*ContainerStateInfo, error) {
	inspect, err := dockerClient.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	return mapContainerState(&inspect), nil
}

// mapContainerState is the single source of truth for state mapping.
func mapContainerState(inspect *types.ContainerJSON) *ContainerStateInfo {
	info := &ContainerStateInfo{
		IsRunning: inspect.State.Running,
		ExitCode:  inspect.State.ExitCode,
	}

	if inspect.State.Running {
		info.State = StateRunning
		return info
	}

	switch {
	case inspect.State.Status == "created":
		info.State = StateCreated

	case inspect.State.Status == "exited" && inspect.State.ExitCode == 0:
		// Clean exit, e.g. after a graceful stop.
		info.State = StateStopped

	case inspect.State.Status == "exited" || inspect.State.Status == "dead":
		info.State = StateError
		info.ErrorMessage = formatExitError(inspect.State)

	case inspect.State.Restarting:
		info.State = StateError
		info.ErrorMessage = "Container is stuck in restart loop"

	default:
		info.State = StateError
		info.ErrorMessage = fmt.Sprintf("Container in unexpected state: %s", inspect.State.Status)
	}

	return info
}

// formatExitError creates a user-facing message for exited containers.
func formatExitError(state *container.State) string {
	if state.Error != "" {
		return fmt.Sprintf("Container exited unexpectedly with code %d: %s",
			state.ExitCode, state.Error)
	}
	return fmt.Sprintf("Container exited unexpectedly with code %d", state.ExitCode)
}

// updateEnvironmentStateFromContainer syncs an environment's state with its
// actual container. Only environments in active states are checked so that
// an explicit stop is not overwritten.
//
// Returns true when the state changed.
func updateEnvironmentStateFromContainer(ctx context.Context, dockerClient *client.Client, env *Environment) bool {
	switch env.State {
	case StateStarting, StateRunning, StateReady:
	default:
		return false
	}

	containerID := env.ContainerID()
	if containerID == "" {
		return false
	}

	info, err := InspectContainerState(ctx, dockerClient, containerID)
	if err != nil {
		logger.Debug("Failed to inspect container for environment %s: %v", env.ID, err)
		return false
	}

	if info.IsRunning {
		// Ready is stickier than running: an environment promoted to ready
		// stays ready while its container keeps running.
		if env.State == StateStarting {
			env.State = StateRunning
			return true
		}
		return false
	}

	previous := env.State
	env.State = info.State
	env.Error = info.ErrorMessage
	if info.ErrorMessage != "" {
		logger.Warn("Environment %s container exited: %s", env.ID, info.ErrorMessage)
	}
	return previous != env.State
}
