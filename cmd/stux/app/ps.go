package app

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// PsOptions holds options for the ps command
type PsOptions struct {
	*GlobalOptions
}

// NewPsCommand creates the ps command.
//
// The ps command lists benchmark environments, similar to 'docker ps'.
//
// Usage:
//
//	stux ps
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for listing environments
func NewPsCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &PsOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List benchmark environments",
		Long: `List all benchmark environments with their state and configuration.

Shows all environments this controller owns, including stopped ones.`,
		Example: `  # List all environments
  stux ps`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPs(opts)
		},
	}

	return cmd
}

// runPs executes the ps command logic
func runPs(opts *PsOptions) error {
	client := getClient(opts.GlobalOptions)

	environments, err := client.ListEnvironments()
	if err != nil {
		return fmt.Errorf("failed to list environments: %w", err)
	}

	if len(environments) == 0 {
		fmt.Println("No environments found")
		fmt.Println()
		fmt.Println("Start one with: stux up <task>")
		return nil
	}

	// Display environments in a table
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tSTATE\tIMAGE\tUPTIME")

	for _, env := range environments {
		uptime := "-"
		if !env.StartedAt.IsZero() {
			uptime = formatDuration(time.Since(env.StartedAt))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			env.ID,
			env.TaskID,
			env.State,
			env.Image,
			uptime)
	}

	w.Flush()

	return nil
}

// formatDuration formats a duration in human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}
