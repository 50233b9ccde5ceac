package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// GradeOptions holds options for the grade command
type GradeOptions struct {
	*GlobalOptions

	// Workspace overrides the task's default workspace directory
	Workspace string
}

// NewGradeCommand creates the grade command.
//
// The grade command evaluates a workspace against a task's graders and
// prints the weighted score.
//
// Usage:
//
//	stux grade <task> [--workspace DIR]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for grading workspaces
func NewGradeCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &GradeOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "grade <task>",
		Short: "Grade a task workspace",
		Long: `Grade a task workspace against the task's graders.

The server runs the task's test suite and marker checks against the
workspace and reports a weighted score between 0 and 1.`,
		Example: `  # Grade the task's default workspace
  stux grade cve-2025-32444

  # Grade a specific workspace
  stux grade cve-2025-32444 --workspace /workspace/vllm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrade(opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Workspace, "workspace", "w", "",
		"workspace directory to grade (default: the task's workspace)")

	return cmd
}

// runGrade executes the grade command logic
func runGrade(opts *GradeOptions, taskID string) error {
	client := getClient(opts.GlobalOptions)

	fmt.Printf("Grading %s...\n\n", taskID)
	resp, err := client.Grade(taskID, opts.Workspace)
	if err != nil {
		return fmt.Errorf("failed to grade task: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "GRADER\tSCORE\tWEIGHT")
	for _, sub := range resp.SubGrades {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", sub.Name, sub.Score, sub.Weight)
	}
	w.Flush()

	fmt.Println()
	fmt.Printf("Total score: %.2f\n", resp.Score)

	return nil
}
