// Package mcpserver exposes the in-container control surface over the
// Model Context Protocol on stdio. One server instance is bound to one
// task: it serves the generic bash/edit tools, the workspace setup and
// branch tools, and a per-task evaluation tool that reports the grade.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stuxbench/stux/internal/grading"
	"github.com/stuxbench/stux/internal/logger"
	"github.com/stuxbench/stux/internal/tasks"
	"github.com/stuxbench/stux/internal/tools"
	"github.com/stuxbench/stux/internal/workspace"
)

// Version is stamped at build time.
var Version = "dev"

// Server wires the task's tools into an MCP stdio server.
type Server struct {
	task      *tasks.Spec
	workspace *workspace.Workspace
	bash      *tools.BashTool
	edit      *tools.EditTool
	mcp       *server.MCPServer
}

// New builds a server for the given task. The workspace directory comes
// from the task spec unless overridden.
func New(task *tasks.Spec, workspaceDir string) (*Server, error) {
	if task == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}
	if workspaceDir == "" {
		workspaceDir = task.WorkspaceDir
	}

	s := &Server{
		task:      task,
		workspace: workspace.New(workspaceDir, task.RepoURL),
		bash:      tools.NewBashTool(workspaceDir),
		edit:      tools.NewEditTool(workspaceDir),
	}

	s.mcp = server.NewMCPServer(
		fmt.Sprintf("stux-%s", task.ID),
		Version,
		server.WithToolCapabilities(false),
	)
	s.registerTools()

	return s, nil
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	logger.Info("Serving MCP tools for task %s on stdio", s.task.ID)
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("bash",
		mcp.WithDescription("Execute a bash command in the workspace and return stdout, stderr and the exit code."),
		mcp.WithString("command", mcp.Required(), mcp.Description("The command to execute.")),
		mcp.WithNumber("timeout", mcp.Description("Timeout in seconds (default 30).")),
		mcp.WithString("cwd", mcp.Description("Working directory, absolute or relative to the workspace.")),
	), s.handleBash)

	s.mcp.AddTool(mcp.NewTool("edit",
		mcp.WithDescription("View, create and edit files. Commands: view, create, str_replace."),
		mcp.WithString("command", mcp.Required(), mcp.Description("One of: view, create, str_replace.")),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path, absolute or relative to the workspace.")),
		mcp.WithString("old_str", mcp.Description("Exact text to replace (str_replace).")),
		mcp.WithString("new_str", mcp.Description("Replacement text (str_replace).")),
		mcp.WithString("file_text", mcp.Description("Full file content (create).")),
		mcp.WithString("view_range", mcp.Description("Line range as \"start,end\" (view).")),
	), s.handleEdit)

	s.mcp.AddTool(mcp.NewTool("generic_setup",
		mcp.WithDescription("Reset the workspace to a branch and strip its git history to a single initial commit."),
		mcp.WithString("branch", mcp.Description("Branch to set up (defaults to the task's default branch).")),
	), s.handleGenericSetup)

	s.mcp.AddTool(mcp.NewTool("checkout_branch",
		mcp.WithDescription("Check out a branch in the workspace, fetching it from origin if needed."),
		mcp.WithString("branch", mcp.Required(), mcp.Description("Branch name.")),
	), s.handleCheckoutBranch)

	evalName := "evaluate_" + strings.ReplaceAll(s.task.ID, "-", "_")
	s.mcp.AddTool(mcp.NewTool(evalName,
		mcp.WithDescription(fmt.Sprintf("Evaluate the current workspace against task %s and return the grade.", s.task.ID)),
	), s.handleEvaluate)
}

func (s *Server) handleBash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	timeout := time.Duration(req.GetInt("timeout", 0)) * time.Second
	cwd := req.GetString("cwd", "")

	result, err := s.bash.Execute(ctx, command, timeout, cwd)
	if err != nil {
		return jsonResult(map[string]string{"status": "error", "error": err.Error()})
	}
	return jsonResult(result)
}

func (s *Server) handleEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, err := req.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var viewRange []int
	if raw := req.GetString("view_range", ""); raw != "" {
		viewRange, err = parseViewRange(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	result, err := s.edit.Execute(
		tools.EditCommand(command),
		path,
		req.GetString("old_str", ""),
		req.GetString("new_str", ""),
		req.GetString("file_text", ""),
		viewRange,
	)
	if err != nil {
		return jsonResult(map[string]string{"status": "error", "error": err.Error()})
	}
	return jsonResult(result)
}

func (s *Server) handleGenericSetup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	branch := req.GetString("branch", "")
	if branch == "" {
		branch = s.task.DefaultBranch
	}

	logger.Info("Setting up workspace on branch %s", branch)
	if err := s.workspace.Setup(ctx, branch); err != nil {
		return jsonResult(map[string]string{"status": "error", "error": err.Error()})
	}
	return jsonResult(map[string]string{"status": "success"})
}

func (s *Server) handleCheckoutBranch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	branch, err := req.RequireString("branch")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.workspace.CheckoutBranch(ctx, branch); err != nil {
		return jsonResult(map[string]string{"status": "error", "error": err.Error()})
	}
	return jsonResult(map[string]string{"status": "success", "branch": branch})
}

func (s *Server) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logger.Info("Evaluating workspace for task %s", s.task.ID)

	grade, err := grading.GradeTask(ctx, s.task, s.workspace.Dir, "")
	if err != nil {
		return jsonResult(map[string]string{"status": "error", "error": err.Error()})
	}
	return jsonResult(grade.ToAPI(s.task.ID))
}

// parseViewRange accepts "start,end" with 1-based line numbers.
func parseViewRange(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("view_range must be \"start,end\", got %q", raw)
	}
	var start, end int
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &start); err != nil {
		return nil, fmt.Errorf("invalid view_range start: %w", err)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &end); err != nil {
		return nil, fmt.Errorf("invalid view_range end: %w", err)
	}
	return []int{start, end}, nil
}

// jsonResult serializes v as the tool's text payload.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
