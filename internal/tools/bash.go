// Package tools implements the agent-facing tools exposed over MCP.
//
// The bash tool runs shell commands inside the task workspace; the edit tool
// views and modifies workspace files. Both return structured results so the
// MCP layer can serialize them directly.
package tools

import (
	"context"
	"time"

	"github.com/stuxbench/stux/internal/logger"
	"github.com/stuxbench/stux/internal/shell"
)

// BashResult is the structured outcome of a bash tool invocation.
type BashResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
	TimedOut   bool   `json:"timed_out"`
}

// BashTool executes shell commands for security testing and code analysis.
type BashTool struct {
	runner *shell.Runner
}

// NewBashTool creates a bash tool rooted at the given working directory.
func NewBashTool(workingDir string) *BashTool {
	return &BashTool{runner: shell.NewRunner(workingDir)}
}

// Execute runs a shell command.
//
// Parameters:
//   - command: the shell command line to run
//   - timeout: per-invocation timeout; zero uses the runner default
//   - cwd: working directory override; empty uses the tool's default
func (t *BashTool) Execute(ctx context.Context, command string, timeout time.Duration, cwd string) (*BashResult, error) {
	preview := command
	if len(preview) > 100 {
		preview = preview[:100]
	}
	logger.Info("Executing command: %s...", preview)

	res, err := t.runner.Run(ctx, shell.Command{
		Shell:   command,
		Dir:     cwd,
		Timeout: timeout,
	})
	if err != nil {
		logger.Error("Error executing command: %v", err)
		return &BashResult{
			Stderr:     err.Error(),
			ReturnCode: -1,
		}, nil
	}

	return &BashResult{
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ReturnCode: res.ExitCode,
		TimedOut:   res.TimedOut,
	}, nil
}
