package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// ListOptions holds options for the list command
type ListOptions struct {
	*GlobalOptions
}

// NewListCommand creates the list command.
//
// The list command displays all benchmark tasks registered on the server.
//
// Usage:
//
//	stux list
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for listing tasks
func NewListCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ListOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available benchmark tasks",
		Long: `List all benchmark tasks registered on the stux server.

Each task corresponds to one CVE to be patched. Use 'stux show <task>' for
full details on a task.`,
		Example: `  # List available tasks
  stux list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts)
		},
	}

	return cmd
}

// runList executes the list command logic
func runList(opts *ListOptions) error {
	client := getClient(opts.GlobalOptions)

	taskList, err := client.ListTasks()
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if len(taskList) == 0 {
		fmt.Println("No tasks registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TASK\tCVE\tIMAGE\tDESCRIPTION")

	for _, task := range taskList {
		image := task.Image
		if image == "" {
			image = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			task.ID,
			task.CVE,
			image,
			truncate(task.Description, 60))
	}

	w.Flush()

	return nil
}

// truncate shortens s to at most n runes, appending "..." when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
