package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// StopOptions holds options for the stop command
type StopOptions struct {
	*GlobalOptions
}

// NewStopCommand creates the stop command.
//
// The stop command stops a running environment. The container is preserved
// so its filesystem can still be inspected or graded.
//
// Usage:
//
//	stux stop <environment>
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for stopping environments
func NewStopCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &StopOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "stop <environment>",
		Short: "Stop a benchmark environment",
		Long: `Stop a running benchmark environment.

The container is stopped but not removed, so the workspace inside it remains
available. Use 'stux rm' to remove it entirely.`,
		Example: `  # Stop an environment
  stux stop cve-2025-32444-a1b2c3d4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(opts, args[0])
		},
	}

	return cmd
}

// runStop executes the stop command logic
func runStop(opts *StopOptions, envID string) error {
	client := getClient(opts.GlobalOptions)

	fmt.Printf("Stopping environment %s...\n", envID)
	if err := client.StopEnvironment(envID); err != nil {
		return fmt.Errorf("failed to stop environment: %w", err)
	}

	fmt.Printf("Environment %s stopped\n", envID)
	return nil
}
