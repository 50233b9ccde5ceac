package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stuxbench/stux/internal/api"
)

// UpOptions holds options for the up command
type UpOptions struct {
	*GlobalOptions

	// Image overrides the task's default image
	Image string

	// Build forces building the task image before starting
	Build bool

	// EnginePort publishes the in-container inference API on this host port
	EnginePort int
}

// NewUpCommand creates the up command.
//
// The up command starts a benchmark environment for a task. Progress is
// streamed from the server over SSE, including Docker build and pull output.
//
// Usage:
//
//	stux up <task> [--image IMAGE] [--build]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for starting environments
func NewUpCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &UpOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "up <task>",
		Short: "Start a benchmark environment",
		Long: `Start a benchmark environment container for the given task.

The server resolves the task's image, optionally builds it from source, and
starts a container running the environment and tool server processes. Build
and pull progress is streamed live.`,
		Example: `  # Start an environment using the task's default image
  stux up cve-2025-32444

  # Force a fresh image build
  stux up cve-2025-32444 --build

  # Use a specific image
  stux up cve-2025-32444 --image stuxbench/vllm-cpu:dev`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Image, "image", "",
		"image to run (default: the task's image)")
	cmd.Flags().BoolVar(&opts.Build, "build", false,
		"build the task image before starting")
	cmd.Flags().IntVarP(&opts.EnginePort, "port", "p", 0,
		"host port for the in-container inference API (default: unpublished)")

	return cmd
}

// runUp executes the up command logic
func runUp(opts *UpOptions, taskID string) error {
	client := getClient(opts.GlobalOptions)

	req := &api.UpEnvironmentRequest{
		TaskID:     taskID,
		Image:      opts.Image,
		Build:      opts.Build,
		EnginePort: opts.EnginePort,
	}

	pd := newProgressDisplay()
	env, err := client.UpEnvironment(req, pd.update)
	pd.finish()
	if err != nil {
		return fmt.Errorf("failed to start environment: %w", err)
	}

	fmt.Println()
	fmt.Printf("Environment %s is %s\n", env.ID, env.State)
	fmt.Printf("  Task:      %s\n", env.TaskID)
	fmt.Printf("  Image:     %s\n", env.Image)
	if env.ContainerID != "" {
		fmt.Printf("  Container: %s\n", shortID(env.ContainerID))
	}
	fmt.Println()
	fmt.Printf("Stream logs with: stux logs %s --follow\n", env.ID)

	return nil
}

// progressDisplay renders server progress events on the terminal.
//
// Docker build and pull output arrives prefixed with DOCKER_CR| (overwrite
// the current line, matching docker's own carriage-return rendering) or
// DOCKER_LF| (start a new line). Unprefixed events are controller status
// messages.
type progressDisplay struct {
	// inProgress is true while the current terminal line holds an
	// overwritten progress line without a trailing newline.
	inProgress bool
}

// newProgressDisplay creates a new progress display
func newProgressDisplay() *progressDisplay {
	return &progressDisplay{}
}

// update processes and displays one event
func (pd *progressDisplay) update(event string) {
	switch {
	case strings.HasPrefix(event, "DOCKER_CR|"):
		// Overwrite the current line in place
		fmt.Printf("\r\033[2K%s", strings.TrimPrefix(event, "DOCKER_CR|"))
		pd.inProgress = true

	case strings.HasPrefix(event, "DOCKER_LF|"):
		pd.breakLine()
		fmt.Println(strings.TrimPrefix(event, "DOCKER_LF|"))

	default:
		pd.breakLine()
		fmt.Printf("▸ %s\n", event)
	}
}

// breakLine terminates a pending overwrite line so subsequent output starts
// on a fresh line.
func (pd *progressDisplay) breakLine() {
	if pd.inProgress {
		fmt.Println()
		pd.inProgress = false
	}
}

// finish completes the display
func (pd *progressDisplay) finish() {
	pd.breakLine()
}

// shortID abbreviates a container ID the way docker does.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
