package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/stuxbench/stux/internal/logger"
)

// readinessGrace is how long a container must stay running after start
// before the environment is promoted to ready. The in-container launcher
// fails fast on a broken environment, so surviving the grace period means
// the two-process pair came up.
const readinessGrace = 3 * time.Second

// Manager tracks environment containers on one Docker host.
//
// All methods are safe for concurrent use; the environments map is guarded
// by an RWMutex.
type Manager struct {
	client     *client.Client
	mu         sync.RWMutex
	envs       map[string]*Environment
	serverName string
}

// NewManager creates a manager, verifies Docker connectivity and restores
// environments from containers left over by previous runs.
func NewManager(serverName string) (*Manager, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon is not accessible: %w", err)
	}

	m := &Manager{
		client:     cli,
		envs:       make(map[string]*Environment),
		serverName: serverName,
	}

	if err := m.LoadExistingContainers(context.Background()); err != nil {
		logger.Warn("Failed to load existing environment containers: %v", err)
	}

	logger.Info("Environment runtime manager initialized (server: %s)", serverName)
	return m, nil
}

// GetServerName returns the server identifier used for container labels.
func (m *Manager) GetServerName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serverName
}

// GetDockerClient exposes the underlying Docker client for operations not
// covered by the manager.
func (m *Manager) GetDockerClient() *client.Client {
	return m.client
}

// Create creates an environment container without starting it.
//
// The container gets a generated ID when params.EnvironmentID is empty and
// is labelled so LoadExistingContainers can rediscover it later.
func (m *Manager) Create(ctx context.Context, params *CreateParams) (*Environment, error) {
	if params == nil || params.TaskID == "" {
		return nil, fmt.Errorf("invalid parameters: task ID is required")
	}
	if params.Image == "" {
		return nil, fmt.Errorf("invalid parameters: image is required")
	}

	envID := params.EnvironmentID
	if envID == "" {
		envID = fmt.Sprintf("%s-%s", params.TaskID, uuid.New().String()[:8])
	}

	m.mu.RLock()
	_, exists := m.envs[envID]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("environment %s already exists", envID)
	}

	logger.Info("Creating environment %s for task %s (image: %s)", envID, params.TaskID, params.Image)
	sendEvent(params.EventChannel, fmt.Sprintf("Creating environment %s...", envID))

	envList := make([]string, 0, len(params.Environment))
	for k, v := range params.Environment {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}

	labels := map[string]string{
		LabelEnvironment: envID,
		LabelTask:        params.TaskID,
		LabelServer:      params.ServerName,
		LabelImage:       params.Image,
	}

	// The inference engine listens on 8000 inside the container; publish it
	// only when the caller asked for a host port.
	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	if params.EnginePort > 0 {
		enginePort := nat.Port("8000/tcp")
		exposedPorts[enginePort] = struct{}{}
		portBindings[enginePort] = []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: fmt.Sprintf("%d", params.EnginePort),
			},
		}
	}

	containerConfig := &container.Config{
		Image:        params.Image,
		Env:          envList,
		Labels:       labels,
		ExposedPorts: exposedPorts,
		Tty:          false,
		OpenStdin:    true, // The controller speaks a stdio protocol.
		AttachStdin:  true,
	}

	hostConfig := &container.HostConfig{
		NetworkMode:  "bridge",
		PortBindings: portBindings,
		Init:         boolPtr(true),
		// A crashed environment must surface as an error, not silently restart.
		RestartPolicy: container.RestartPolicy{Name: "no"},
	}

	resp, err := m.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, envID)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	env := &Environment{
		ID:        envID,
		TaskID:    params.TaskID,
		Image:     params.Image,
		State:     StateCreated,
		CreatedAt: time.Now(),
		Metadata:  map[string]string{"container_id": resp.ID},
	}

	m.mu.Lock()
	m.envs[envID] = env
	out := env.snapshot()
	m.mu.Unlock()

	logger.Info("Environment container created: %s (container: %s)", envID, resp.ID[:12])
	sendEvent(params.EventChannel, fmt.Sprintf("Environment container created: %s", resp.ID[:12]))

	return out, nil
}

// Start starts a created or stopped environment container.
func (m *Manager) Start(ctx context.Context, envID string) error {
	env, err := m.lookup(envID)
	if err != nil {
		return err
	}

	containerID := env.ContainerID()
	if containerID == "" {
		return fmt.Errorf("container ID not found for environment: %s", envID)
	}

	logger.Info("Starting environment container: %s (%s)", envID, containerID[:12])

	if err := m.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	m.mu.Lock()
	env.State = StateStarting
	env.StartedAt = time.Now()
	env.Error = ""
	m.mu.Unlock()

	return nil
}

// WaitReady blocks until the environment container has stayed running for
// the readiness grace period, the container exits, or the timeout elapses.
// On success the environment is promoted to StateReady.
func (m *Manager) WaitReady(ctx context.Context, envID string, timeout time.Duration) error {
	env, err := m.lookup(envID)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	var runningSince time.Time

	for {
		info, err := InspectContainerState(ctx, m.client, env.ContainerID())
		if err != nil {
			return fmt.Errorf("failed to check environment %s: %w", envID, err)
		}

		if !info.IsRunning {
			m.mu.Lock()
			env.State = info.State
			env.Error = info.ErrorMessage
			m.mu.Unlock()
			if info.ErrorMessage != "" {
				return fmt.Errorf("environment %s failed to start: %s", envID, info.ErrorMessage)
			}
			return fmt.Errorf("environment %s exited before becoming ready", envID)
		}

		if runningSince.IsZero() {
			runningSince = time.Now()
		}
		if time.Since(runningSince) >= readinessGrace {
			m.mu.Lock()
			env.State = StateReady
			m.mu.Unlock()
			logger.Info("Environment %s is ready", envID)
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("environment %s not ready after %s", envID, timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Stop gracefully stops an environment. The container is preserved so logs
// stay inspectable until an explicit remove.
func (m *Manager) Stop(ctx context.Context, envID string) error {
	env, err := m.lookup(envID)
	if err != nil {
		return err
	}

	containerID := env.ContainerID()
	logger.Info("Stopping environment container: %s (%s)", envID, containerID[:12])

	timeout := 30
	if err := m.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	m.mu.Lock()
	env.State = StateStopped
	env.StoppedAt = time.Now()
	m.mu.Unlock()

	logger.Info("Environment stopped: %s (container preserved)", envID)
	return nil
}

// Remove removes an environment container and drops it from tracking.
// Running containers are force-removed together with anonymous volumes.
func (m *Manager) Remove(ctx context.Context, envID string) error {
	env, err := m.lookup(envID)
	if err != nil {
		return err
	}

	containerID := env.ContainerID()
	logger.Info("Removing environment container: %s (%s)", envID, containerID[:12])

	removeOptions := container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}
	if err := m.client.ContainerRemove(ctx, containerID, removeOptions); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	m.mu.Lock()
	delete(m.envs, envID)
	m.mu.Unlock()

	logger.Info("Environment removed: %s", envID)
	return nil
}

// Get returns a copy of an environment after syncing its state with the
// container. Copies keep callers from reading fields the manager mutates
// under its lock.
func (m *Manager) Get(ctx context.Context, envID string) (*Environment, error) {
	env, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	updateEnvironmentStateFromContainer(ctx, m.client, env)
	out := env.snapshot()
	m.mu.Unlock()

	return out, nil
}

// List returns copies of all tracked environments with refreshed states.
func (m *Manager) List(ctx context.Context) ([]*Environment, error) {
	m.mu.RLock()
	envs := make([]*Environment, 0, len(m.envs))
	for _, env := range m.envs {
		envs = append(envs, env)
	}
	m.mu.RUnlock()

	out := make([]*Environment, 0, len(envs))
	m.mu.Lock()
	for _, env := range envs {
		updateEnvironmentStateFromContainer(ctx, m.client, env)
		out = append(out, env.snapshot())
	}
	m.mu.Unlock()

	return out, nil
}

// Logs returns the container log stream for an environment. The caller must
// close the stream.
func (m *Manager) Logs(ctx context.Context, envID string, follow bool) (LogStream, error) {
	env, err := m.lookup(envID)
	if err != nil {
		return nil, err
	}

	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: true,
		Tail:       "all",
	}

	reader, err := m.client.ContainerLogs(ctx, env.ContainerID(), options)
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}
	return reader, nil
}

// LoadExistingContainers rediscovers environment containers by label so the
// manager resumes tracking them after a server restart.
func (m *Manager) LoadExistingContainers(ctx context.Context) error {
	listFilters := filters.NewArgs(filters.Arg("label", LabelEnvironment))

	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: listFilters,
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, c := range containers {
		envID := c.Labels[LabelEnvironment]
		if envID == "" {
			logger.Warn("Skipping container %s: missing %s label", c.ID[:12], LabelEnvironment)
			continue
		}

		if m.serverName != "" && c.Labels[LabelServer] != m.serverName {
			logger.Debug("Skipping container %s: belongs to server '%s', not '%s'",
				c.ID[:12], c.Labels[LabelServer], m.serverName)
			continue
		}

		info, err := InspectContainerState(ctx, m.client, c.ID)
		if err != nil {
			logger.Warn("Failed to inspect container %s (environment %s): %v", c.ID[:12], envID, err)
			info = &ContainerStateInfo{
				State:        StateUnknown,
				ErrorMessage: fmt.Sprintf("Failed to inspect: %v", err),
			}
		}

		createdAt := time.Unix(c.Created, 0)
		startedAt := createdAt
		if info.IsRunning {
			if inspectData, err := m.client.ContainerInspect(ctx, c.ID); err == nil {
				if inspectData.State != nil && inspectData.State.StartedAt != "" {
					if parsed, err := time.Parse(time.RFC3339Nano, inspectData.State.StartedAt); err == nil {
						startedAt = parsed
					}
				}
			}
		}

		m.envs[envID] = &Environment{
			ID:        envID,
			TaskID:    c.Labels[LabelTask],
			Image:     c.Labels[LabelImage],
			State:     info.State,
			CreatedAt: createdAt,
			StartedAt: startedAt,
			Error:     info.ErrorMessage,
			Metadata:  map[string]string{"container_id": c.ID},
		}
		loaded++

		logger.Info("Loaded environment %s (container %s, state: %s)", envID, c.ID[:12], info.State)
	}

	logger.Info("Loaded %d existing environment containers", loaded)
	return nil
}

// ReloadContainers clears the tracking map and reloads from Docker.
func (m *Manager) ReloadContainers(ctx context.Context) error {
	m.mu.Lock()
	m.envs = make(map[string]*Environment)
	m.mu.Unlock()

	logger.Info("Reloading environment containers")
	return m.LoadExistingContainers(ctx)
}

// FindByTask returns the first environment created for a task, if any.
func (m *Manager) FindByTask(ctx context.Context, taskID string) (*Environment, error) {
	envs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, env := range envs {
		if env.TaskID == taskID {
			return env, nil
		}
	}
	return nil, fmt.Errorf("no environment found for task %s", taskID)
}

// Close releases the Docker client.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) lookup(envID string) (*Environment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	env, exists := m.envs[envID]
	if !exists {
		return nil, fmt.Errorf("environment not found: %s", envID)
	}
	return env, nil
}

func sendEvent(eventCh chan<- string, msg string) {
	if eventCh != nil {
		select {
		case eventCh <- msg:
		default:
			// Channel full or closed, skip
		}
	}
}

func boolPtr(b bool) *bool {
	return &b
}
