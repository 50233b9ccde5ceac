package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RmOptions holds options for the rm command
type RmOptions struct {
	*GlobalOptions

	// Force stops a running environment before removing it
	Force bool
}

// NewRmCommand creates the rm command.
//
// The rm command removes an environment and its container.
//
// Usage:
//
//	stux rm <environment> [--force]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for removing environments
func NewRmCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &RmOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "rm <environment>",
		Short: "Remove a benchmark environment",
		Long: `Remove a benchmark environment and its container.

Removing a running environment fails unless --force is given, in which case
the container is stopped first.`,
		Example: `  # Remove a stopped environment
  stux rm cve-2025-32444-a1b2c3d4

  # Stop and remove a running environment
  stux rm cve-2025-32444-a1b2c3d4 --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(opts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false,
		"stop the environment before removing it")

	return cmd
}

// runRm executes the rm command logic
func runRm(opts *RmOptions, envID string) error {
	client := getClient(opts.GlobalOptions)

	if err := client.RemoveEnvironment(envID, opts.Force); err != nil {
		return fmt.Errorf("failed to remove environment: %w", err)
	}

	fmt.Printf("Environment %s removed\n", envID)
	return nil
}
