package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/launcher"
)

// LaunchOptions holds options for the launch command
type LaunchOptions struct {
	*GlobalOptions

	// Task selects which task the tool server serves
	Task string

	// Workspace is the task workspace directory
	Workspace string

	// RunDir is the run-state directory shared by both processes
	RunDir string

	// ReadyTimeout bounds how long to wait for environment readiness
	ReadyTimeout time.Duration
}

// NewLaunchCommand creates the launch command.
//
// The launch command is the container entry point. It starts the
// environment-init process, waits for the readiness sentinel, then runs the
// stdio tool server in the foreground with inherited stdin/stdout.
//
// Usage:
//
//	stux launch --workspace DIR [--task TASK]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for the two-process container launch
func NewLaunchCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &LaunchOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch the in-container process pair",
		Long: `Launch the environment-init process and the stdio tool server.

This is the ENTRYPOINT of task images. The environment process prepares the
workspace and publishes a readiness sentinel; once it is ready the tool
server starts on stdin/stdout. If the environment process exits before
becoming ready, launch fails fast instead of waiting out the timeout.`,
		Example: `  # Container entry point
  stux launch --workspace /workspace/vllm

  # Serve a specific task
  stux launch --workspace /workspace/vllm --task cve-2025-32444`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Workspace == "" {
				return fmt.Errorf("--workspace is required")
			}
			return runLaunch(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Task, "task", "",
		"task to serve (default: $STUX_TASK, then cve-2025-32444)")
	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "",
		"task workspace directory (required)")
	cmd.Flags().StringVar(&opts.RunDir, "run-dir", "",
		"run-state directory (default: <data>/run)")
	cmd.Flags().DurationVar(&opts.ReadyTimeout, "ready-timeout", launcher.DefaultReadyTimeout,
		"how long to wait for the environment to become ready")

	return cmd
}

// runLaunch executes the launch command logic
func runLaunch(opts *LaunchOptions) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve own executable: %w", err)
	}

	runDir := opts.RunDir
	if runDir == "" {
		runDir = config.NewDefaultConfig().Storage.GetRunDir()
	}

	// The container tells us which task it was built for via label-derived
	// environment variables; the flag wins when both are set.
	task := opts.Task
	if task == "" {
		task = os.Getenv("STUX_TASK")
	}
	if task == "" {
		task = "cve-2025-32444"
	}

	l := &launcher.Launcher{
		EnvCommand: []string{
			exe, "env",
			"--run-dir", runDir,
			"--workspace", opts.Workspace,
		},
		ServerCommand: []string{
			exe, "mcp", task,
			"--workspace", opts.Workspace,
		},
		RunDir:       runDir,
		ReadyTimeout: opts.ReadyTimeout,
	}

	return l.Run(context.Background())
}
