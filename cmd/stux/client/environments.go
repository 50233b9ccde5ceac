// Package client - environments.go implements environment lifecycle calls,
// including the SSE progress stream for environment up.
package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stuxbench/stux/internal/api"
	"github.com/stuxbench/stux/internal/logger"
)

// UpEnvironment starts a task environment, streaming progress through the
// callback. It blocks until the server reports the environment ready (the
// "done" event) or fails.
func (c *Client) UpEnvironment(req *api.UpEnvironmentRequest, progressCallback func(string)) (*api.Environment, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/environments/up", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	logger.Debug("Initiating SSE environment up for task %s", req.TaskID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to stux server at %s\n\nIs the server running? Start it with: stux serve", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("server error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("server error: status %d", resp.StatusCode)
	}

	return c.processUpStream(resp.Body, progressCallback)
}

// processUpStream consumes the SSE stream from /api/environments/up.
//
// The server sends plain-text progress as `data:` lines, a terminal
// `event: done` carrying the environment JSON, or `event: error`.
func (c *Client) processUpStream(body interface{ Read([]byte) (int, error) }, progressCallback func(string)) (*api.Environment, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	currentEvent := ""
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue

		case strings.HasPrefix(line, ": "):
			// Keep-alive comment.
			continue

		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")

			switch currentEvent {
			case "done":
				var resp api.UpEnvironmentResponse
				if err := json.Unmarshal([]byte(data), &resp); err != nil {
					return nil, fmt.Errorf("failed to parse completion event: %w", err)
				}
				return &resp.Environment, nil

			case "error":
				var errData map[string]string
				if err := json.Unmarshal([]byte(data), &errData); err == nil && errData["error"] != "" {
					return nil, fmt.Errorf("%s", errData["error"])
				}
				return nil, fmt.Errorf("%s", data)

			default:
				if progressCallback != nil {
					progressCallback(data)
				}
			}

		case line == "":
			// Event boundary.
			currentEvent = ""
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stream: %w", err)
	}
	return nil, fmt.Errorf("stream ended before the environment became ready")
}

// ListEnvironments fetches all environments known to the server.
func (c *Client) ListEnvironments() ([]api.Environment, error) {
	var resp api.ListEnvironmentsResponse
	if err := c.doRequest(http.MethodPost, "/api/environments/list", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Environments, nil
}

// StopEnvironment stops an environment by ID.
func (c *Client) StopEnvironment(id string) error {
	return c.doRequest(http.MethodPost, "/api/environments/stop", api.EnvironmentRequest{ID: id}, nil)
}

// RemoveEnvironment removes an environment by ID, optionally force-stopping
// it first.
func (c *Client) RemoveEnvironment(id string, force bool) error {
	return c.doRequest(http.MethodPost, "/api/environments/remove", api.EnvironmentRequest{ID: id, Force: force}, nil)
}

// StreamLogs streams environment logs line by line into the callback until
// the stream closes or the server stops sending (follow=false).
func (c *Client) StreamLogs(id string, follow bool, logCallback func(string)) error {
	url := fmt.Sprintf("%s/api/environments/logs?id=%s&follow=%t", c.baseURL, id, follow)

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("cannot connect to stux server at %s\n\nIs the server running? Start it with: stux serve", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("server error: %s", errResp.Error)
		}
		return fmt.Errorf("server error: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if logCallback != nil {
			logCallback(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log stream: %w", err)
	}
	return nil
}
