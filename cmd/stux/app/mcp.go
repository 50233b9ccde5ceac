package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stuxbench/stux/internal/mcpserver"
	"github.com/stuxbench/stux/internal/tasks"
)

// MCPOptions holds options for the mcp command
type MCPOptions struct {
	*GlobalOptions

	// Workspace overrides the task's default workspace directory
	Workspace string

	// TasksConfig is an optional tasks.yaml extending the built-in tasks
	TasksConfig string
}

// NewMCPCommand creates the mcp command.
//
// The mcp command runs the stdio tool server for one task. It is the
// in-container entry point an agent connects to: tools are exchanged as
// JSON-RPC over stdin/stdout, so nothing else may write to stdout.
//
// Usage:
//
//	stux mcp <task> [--workspace DIR]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for serving tools over stdio
func NewMCPCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &MCPOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "mcp <task>",
		Short: "Run the stdio tool server for a task",
		Long: `Run the MCP tool server for a benchmark task over stdio.

This command is normally executed inside an environment container by
'stux launch'. It exposes bash, file editing, task setup and grading tools
to an agent over the MCP stdio transport.`,
		Example: `  # Serve tools for a task
  stux mcp cve-2025-32444

  # Serve tools against a specific workspace
  stux mcp cve-2025-32444 --workspace /workspace/vllm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "",
		"workspace directory (default: the task's workspace)")
	cmd.Flags().StringVar(&opts.TasksConfig, "tasks-config", "",
		"path to a tasks.yaml extending the built-in tasks")

	return cmd
}

// runMCP executes the mcp command logic
func runMCP(opts *MCPOptions, taskID string) error {
	registry := tasks.DefaultRegistry()

	if opts.TasksConfig != "" {
		if _, err := os.Stat(opts.TasksConfig); err != nil {
			return fmt.Errorf("tasks config %s not readable: %w", opts.TasksConfig, err)
		}
		if err := tasks.LoadAndRegisterTasks(registry, opts.TasksConfig); err != nil {
			return fmt.Errorf("failed to load tasks from %s: %w", opts.TasksConfig, err)
		}
	}

	task, err := registry.Get(taskID)
	if err != nil {
		return fmt.Errorf("unknown task %q: %w", taskID, err)
	}

	mcpserver.Version = GetVersion()
	srv, err := mcpserver.New(task, opts.Workspace)
	if err != nil {
		return fmt.Errorf("failed to create tool server: %w", err)
	}

	// ServeStdio blocks until stdin closes.
	return srv.ServeStdio()
}
