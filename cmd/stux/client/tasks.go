package client

import (
	"net/http"

	"github.com/stuxbench/stux/internal/api"
)

// ListTasks fetches all registered benchmark tasks.
func (c *Client) ListTasks() ([]api.Task, error) {
	var resp api.ListTasksResponse
	if err := c.doRequest(http.MethodPost, "/api/tasks/list", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// ShowTask fetches a single task by ID.
func (c *Client) ShowTask(id string) (*api.Task, error) {
	var task api.Task
	if err := c.doRequest(http.MethodPost, "/api/tasks/show", api.ShowTaskRequest{ID: id}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Grade runs the grading procedure for a task and returns the verdict.
func (c *Client) Grade(taskID, workspaceDir string) (*api.GradeResponse, error) {
	req := api.GradeRequest{TaskID: taskID, WorkspaceDir: workspaceDir}
	var resp api.GradeResponse
	if err := c.doRequest(http.MethodPost, "/api/grade", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
