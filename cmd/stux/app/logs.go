package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// LogsOptions holds options for the logs command
type LogsOptions struct {
	*GlobalOptions

	// Follow keeps the stream open and tails new output
	Follow bool
}

// NewLogsCommand creates the logs command.
//
// The logs command streams container logs from an environment, similar to
// 'docker logs'.
//
// Usage:
//
//	stux logs <environment> [--follow]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for streaming logs
func NewLogsCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &LogsOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "logs <environment>",
		Short: "Stream environment logs",
		Long: `Stream the container logs of a benchmark environment.

With --follow the stream stays open and new output is printed as it arrives.
Press Ctrl+C to stop following.`,
		Example: `  # Print logs
  stux logs cve-2025-32444-a1b2c3d4

  # Follow logs
  stux logs cve-2025-32444-a1b2c3d4 --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(opts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false,
		"follow log output")

	return cmd
}

// runLogs executes the logs command logic
func runLogs(opts *LogsOptions, envID string) error {
	client := getClient(opts.GlobalOptions)

	err := client.StreamLogs(envID, opts.Follow, func(line string) {
		fmt.Println(line)
	})
	if err != nil {
		return fmt.Errorf("failed to stream logs: %w", err)
	}

	return nil
}
