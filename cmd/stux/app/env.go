package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/envinit"
)

// EnvOptions holds options for the env command
type EnvOptions struct {
	*GlobalOptions

	// RunDir is where env.json and the readiness sentinel are written
	RunDir string

	// Workspace is the task workspace directory to validate
	Workspace string
}

// NewEnvCommand creates the env command.
//
// The env command runs the environment-init process inside a container: it
// validates the workspace, writes env.json and the readiness sentinel, then
// blocks until signalled.
//
// Usage:
//
//	stux env --workspace DIR [--run-dir DIR]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for the environment-init process
func NewEnvCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &EnvOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Run the environment-init process",
		Long: `Run the environment-init process for a benchmark container.

This command is normally started by 'stux launch'. It prepares the run
directory, publishes the readiness sentinel and then blocks until it
receives SIGINT or SIGTERM.`,
		Example: `  # Initialize an environment
  stux env --workspace /workspace/vllm --run-dir /run/stux`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Workspace == "" {
				return fmt.Errorf("--workspace is required")
			}
			return runEnv(opts)
		},
	}

	cmd.Flags().StringVar(&opts.RunDir, "run-dir", "",
		"run-state directory (default: <data>/run)")
	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "",
		"task workspace directory (required)")

	return cmd
}

// runEnv executes the env command logic
func runEnv(opts *EnvOptions) error {
	cfg := config.NewDefaultConfig()

	runDir := opts.RunDir
	if runDir == "" {
		runDir = cfg.Storage.GetRunDir()
	}

	return envinit.Run(context.Background(), cfg, runDir, opts.Workspace)
}
