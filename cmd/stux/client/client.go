// Package client provides the HTTP client for talking to the stux server.
//
// It implements the client side of the controller API used by the CLI:
// task listing, environment lifecycle with SSE progress streaming, log
// streaming and grading. All methods are safe for concurrent use.
package client

import (
	"net/http"

	"github.com/stuxbench/stux/internal/api"
)

// Client is the HTTP client for communicating with the stux server.
type Client struct {
	// baseURL is the server address, e.g. "http://localhost:11681".
	baseURL string

	httpClient *http.Client
}

// NewClient creates a client for the given server base URL.
//
// The HTTP client carries no timeout: environment up and log follow are
// streaming operations that stay open for minutes.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// Health checks server liveness via GET /api/health.
func (c *Client) Health() (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version fetches server version info via GET /api/version.
func (c *Client) Version() (*api.VersionResponse, error) {
	var resp api.VersionResponse
	if err := c.doRequest(http.MethodGet, "/api/version", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
