package runtime

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
)

func inspectWith(state *container.State) *types.ContainerJSON {
	return &types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{State: state},
	}
}

func TestMapContainerStateRunning(t *testing.T) {
	info := mapContainerState(inspectWith(&container.State{Running: true, Status: "running"}))

	assert.Equal(t, StateRunning, info.State)
	assert.True(t, info.IsRunning)
	assert.Empty(t, info.ErrorMessage)
}

func TestMapContainerStateCreated(t *testing.T) {
	info := mapContainerState(inspectWith(&container.State{Status: "created"}))

	assert.Equal(t, StateCreated, info.State)
}

func TestMapContainerStateCleanExit(t *testing.T) {
	info := mapContainerState(inspectWith(&container.State{Status: "exited", ExitCode: 0}))

	assert.Equal(t, StateStopped, info.State)
	assert.Empty(t, info.ErrorMessage)
}

func TestMapContainerStateCrash(t *testing.T) {
	info := mapContainerState(inspectWith(&container.State{Status: "exited", ExitCode: 137}))

	assert.Equal(t, StateError, info.State)
	assert.Contains(t, info.ErrorMessage, "exited unexpectedly with code 137")
}

func TestMapContainerStateCrashWithError(t *testing.T) {
	info := mapContainerState(inspectWith(&container.State{
		Status:   "dead",
		ExitCode: 1,
		Error:    "oom killed",
	}))

	assert.Equal(t, StateError, info.State)
	assert.Contains(t, info.ErrorMessage, "oom killed")
}

func TestMapContainerStateUnexpected(t *testing.T) {
	info := mapContainerState(inspectWith(&container.State{Status: "paused"}))

	assert.Equal(t, StateError, info.State)
	assert.Contains(t, info.ErrorMessage, "paused")
}

func TestEnvironmentToAPI(t *testing.T) {
	env := &Environment{
		ID:       "cve-2025-32444-abc123",
		TaskID:   "cve-2025-32444",
		Image:    "stuxbench/vllm-cpu:latest",
		State:    StateReady,
		Error:    "",
		Metadata: map[string]string{"container_id": "deadbeef"},
	}

	out := env.ToAPI()
	assert.Equal(t, env.ID, out.ID)
	assert.Equal(t, env.TaskID, out.TaskID)
	assert.Equal(t, "ready", string(out.State))
	assert.Equal(t, "deadbeef", out.ContainerID)
}

func TestContainerIDWithoutMetadata(t *testing.T) {
	env := &Environment{ID: "x"}
	assert.Empty(t, env.ContainerID())
}

func TestEnvironmentSnapshotIsIndependent(t *testing.T) {
	env := &Environment{
		ID:       "cve-2025-32444-abc123",
		State:    StateRunning,
		Metadata: map[string]string{"container_id": "deadbeef"},
	}

	copied := env.snapshot()
	copied.State = StateError
	copied.Metadata["container_id"] = "cafef00d"

	// Mutations of the returned copy never reach the tracked environment.
	assert.Equal(t, StateRunning, env.State)
	assert.Equal(t, "deadbeef", env.Metadata["container_id"])
}
