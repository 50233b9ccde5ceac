package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/stuxbench/stux/internal/api"
	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/cpufeat"
	"github.com/stuxbench/stux/internal/imagebuild"
	"github.com/stuxbench/stux/internal/logger"
	rt "github.com/stuxbench/stux/internal/runtime"
)

// upTimeout bounds the whole up operation excluding image builds, which
// stream their own progress and can run much longer.
const upTimeout = 5 * time.Minute

// UpEnvironment handles POST /api/environments/up.
//
// Supports SSE for streaming progress (image pull/build, container create,
// readiness). With a JSON Accept header the endpoint blocks and returns the
// final environment.
func (h *Handler) UpEnvironment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.UpEnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		h.WriteError(w, "task_id is required", http.StatusBadRequest)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.upEnvironmentSSE(w, r, &req)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upTimeout)
	defer cancel()

	env, err := h.upEnvironment(ctx, &req, nil)
	if err != nil {
		h.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.WriteJSON(w, api.UpEnvironmentResponse{Environment: env.ToAPI()}, http.StatusOK)
}

// upEnvironmentSSE streams up progress as server-sent events.
func (h *Handler) upEnvironmentSSE(w http.ResponseWriter, r *http.Request, req *api.UpEnvironmentRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.WriteError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	eventCh := make(chan string, 100)
	doneCh := make(chan *rt.Environment, 1)
	errorCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer close(eventCh)
		env, err := h.upEnvironment(ctx, req, eventCh)
		if err != nil {
			errorCh <- err
			return
		}
		doneCh <- env
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				// Producer finished; wait for the done or error payload.
				eventCh = nil
				continue
			}
			if event == "" {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", escapeSSE(event))
			flusher.Flush()

		case env := <-doneCh:
			payload, _ := json.Marshal(api.UpEnvironmentResponse{Environment: env.ToAPI()})
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
			flusher.Flush()
			return

		case err := <-errorCh:
			errJSON, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", errJSON)
			flusher.Flush()
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			cancel()
			logger.Info("Client disconnected, cancelling environment up")
			return
		}
	}
}

// upEnvironment resolves the image (building it when requested), creates
// the environment container, starts it and waits for readiness.
func (h *Handler) upEnvironment(ctx context.Context, req *api.UpEnvironmentRequest, eventCh chan<- string) (*rt.Environment, error) {
	task, err := h.taskRegistry.Get(req.TaskID)
	if err != nil {
		return nil, err
	}

	image := req.Image
	if image == "" {
		image = task.Image
	}
	if image == "" {
		return nil, fmt.Errorf("task %s has no environment image configured; pass one explicitly", req.TaskID)
	}

	if req.Build {
		if err := h.buildTaskImage(ctx, task.RepoURL, task.DefaultBranch, image, eventCh); err != nil {
			return nil, err
		}
	} else {
		exists, err := imagebuild.CheckImageExists(ctx, image)
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := imagebuild.EnsureBaseImage(ctx, image, eventCh); err != nil {
				return nil, fmt.Errorf("image %s not available locally and pull failed: %w", image, err)
			}
		}
	}

	env, err := h.runtimeManager.Create(ctx, &rt.CreateParams{
		TaskID:     req.TaskID,
		Image:      image,
		ServerName: h.runtimeManager.GetServerName(),
		// The in-container launcher resolves its task from this variable.
		Environment:  map[string]string{"STUX_TASK": req.TaskID},
		EnginePort:   req.EnginePort,
		EventChannel: eventCh,
	})
	if err != nil {
		return nil, err
	}

	if err := h.runtimeManager.Start(ctx, env.ID); err != nil {
		// Keep the created container around for inspection.
		return nil, fmt.Errorf("failed to start environment %s: %w", env.ID, err)
	}

	sendEvent(eventCh, fmt.Sprintf("Waiting for environment %s to become ready...", env.ID))
	if err := h.runtimeManager.WaitReady(ctx, env.ID, 60*time.Second); err != nil {
		return nil, err
	}
	sendEvent(eventCh, fmt.Sprintf("Environment %s is ready", env.ID))

	// Create handed out a pre-start copy; return the refreshed one.
	return h.runtimeManager.Get(ctx, env.ID)
}

// buildTaskImage builds the task environment image using the host's build
// profile, restricted to what the build machine's CPU supports.
func (h *Handler) buildTaskImage(ctx context.Context, repoURL, branch, tag string, eventCh chan<- string) error {
	profiles, err := config.GetOrCreateBuildProfiles(h.config.Storage.ConfigDir)
	if err != nil {
		return err
	}
	profile, err := profiles.Get(runtime.GOARCH)
	if err != nil {
		return err
	}
	profile = cpufeat.Restrict(profile, cpufeat.Detect())

	return imagebuild.Build(ctx, &imagebuild.BuildOptions{
		Tag:          tag,
		Profile:      profile,
		Env:          &h.config.Build,
		RepoURL:      repoURL,
		Branch:       branch,
		ContextDir:   h.config.Storage.GetBuildDir(),
		EventChannel: eventCh,
	})
}

// ListEnvironments handles POST /api/environments/list.
func (h *Handler) ListEnvironments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	envs, err := h.runtimeManager.List(r.Context())
	if err != nil {
		h.WriteError(w, fmt.Sprintf("Failed to list environments: %v", err), http.StatusInternalServerError)
		return
	}

	out := make([]api.Environment, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.ToAPI())
	}
	h.WriteJSON(w, api.ListEnvironmentsResponse{Environments: out}, http.StatusOK)
}

// StopEnvironment handles POST /api/environments/stop.
func (h *Handler) StopEnvironment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.EnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		h.WriteError(w, "environment id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	if err := h.runtimeManager.Stop(ctx, req.ID); err != nil {
		h.WriteError(w, fmt.Sprintf("Failed to stop environment: %v", err), http.StatusInternalServerError)
		return
	}

	h.WriteJSON(w, map[string]string{"message": "Environment stopped successfully"}, http.StatusOK)
}

// RemoveEnvironment handles POST /api/environments/remove.
func (h *Handler) RemoveEnvironment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.EnvironmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		h.WriteError(w, "environment id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if req.Force {
		// Stop errors are ignored; the environment may already be down.
		_ = h.runtimeManager.Stop(ctx, req.ID)
	}

	if err := h.runtimeManager.Remove(ctx, req.ID); err != nil {
		h.WriteError(w, fmt.Sprintf("Failed to remove environment: %v", err), http.StatusInternalServerError)
		return
	}

	h.WriteJSON(w, map[string]string{"message": "Environment removed successfully"}, http.StatusOK)
}

// StreamLogs handles GET /api/environments/logs?id=ID&follow=true|false.
//
// Docker multiplexes stdout and stderr into one stream with 8-byte headers;
// stdcopy splits them back before writing to the response.
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	envID := r.URL.Query().Get("id")
	if envID == "" {
		h.WriteError(w, "id parameter is required", http.StatusBadRequest)
		return
	}
	follow := r.URL.Query().Get("follow") != "false"

	logStream, err := h.runtimeManager.Logs(r.Context(), envID, follow)
	if err != nil {
		h.WriteError(w, fmt.Sprintf("Failed to get logs: %v", err), http.StatusInternalServerError)
		return
	}
	defer logStream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, hasFlusher := w.(http.Flusher)
	if hasFlusher {
		flusher.Flush()
	}

	fw := &flushingWriter{writer: w, flusher: flusher}
	if _, err := stdcopy.StdCopy(fw, fw, logStream); err != nil && err != io.EOF {
		logger.Error("Error streaming logs: %v", err)
	}
}

// flushingWriter flushes after each write so log lines arrive in real time.
type flushingWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func (fw *flushingWriter) Write(p []byte) (n int, err error) {
	n, err = fw.writer.Write(p)
	if err == nil && fw.flusher != nil {
		fw.flusher.Flush()
	}
	return n, err
}

// escapeSSE flattens newlines so an event stays a single SSE data line.
func escapeSSE(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
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
