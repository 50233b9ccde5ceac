package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ShowOptions holds options for the show command
type ShowOptions struct {
	*GlobalOptions
}

// NewShowCommand creates the show command.
//
// The show command displays detailed information about a single task.
//
// Usage:
//
//	stux show <task>
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for showing task details
func NewShowCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ShowOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "show <task>",
		Short: "Show detailed task information",
		Long: `Show detailed information about a benchmark task, including the
repository it patches, its branches and its workspace directory.`,
		Example: `  # Show details for a task
  stux show cve-2025-32444`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0])
		},
	}

	return cmd
}

// runShow executes the show command logic
func runShow(opts *ShowOptions, taskID string) error {
	client := getClient(opts.GlobalOptions)

	task, err := client.ShowTask(taskID)
	if err != nil {
		return fmt.Errorf("failed to show task: %w", err)
	}

	fmt.Printf("Task:           %s\n", task.ID)
	fmt.Printf("CVE:            %s\n", task.CVE)
	fmt.Printf("Description:    %s\n", task.Description)
	fmt.Printf("Repository:     %s\n", task.RepoURL)
	fmt.Printf("Default Branch: %s\n", task.DefaultBranch)
	fmt.Printf("Test Branch:    %s\n", task.TestBranch)
	fmt.Printf("Workspace:      %s\n", task.WorkspaceDir)
	if task.Image != "" {
		fmt.Printf("Image:          %s\n", task.Image)
	}

	return nil
}
