package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/cpufeat"
	"github.com/stuxbench/stux/internal/imagebuild"
	"github.com/stuxbench/stux/internal/tasks"
)

// BuildOptions holds options for the build command
type BuildOptions struct {
	*GlobalOptions

	// Tag overrides the task's default image tag
	Tag string

	// Repo overrides the task's engine repository URL
	Repo string

	// Branch overrides the task's default branch
	Branch string

	// ContextDir overrides the build context directory
	ContextDir string
}

// NewBuildCommand creates the build command.
//
// The build command builds a task's environment image locally, without going
// through the server. The host's build profile is restricted to the CPU
// features the build machine actually has.
//
// Usage:
//
//	stux build <task> [--tag TAG]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for building task images
func NewBuildCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &BuildOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "build <task>",
		Short: "Build a task environment image",
		Long: `Build the Docker image for a benchmark task on the local daemon.

The image compiles the task's inference engine from source for CPU-only
execution. Instruction-set flags are taken from the host build profile and
restricted to what /proc/cpuinfo reports. Set GIT_REPO_TOKEN to clone
private engine repositories; the token is passed as a build argument and
never written to the Dockerfile.`,
		Example: `  # Build the default image for a task
  stux build cve-2025-32444

  # Build under a custom tag from a fork
  stux build cve-2025-32444 --tag stuxbench/vllm-cpu:dev --repo https://github.com/example/vllm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Tag, "tag", "t", "",
		"image tag to produce (default: the task's image)")
	cmd.Flags().StringVar(&opts.Repo, "repo", "",
		"engine repository URL (default: the task's repository)")
	cmd.Flags().StringVar(&opts.Branch, "branch", "",
		"branch to build (default: the task's default branch)")
	cmd.Flags().StringVar(&opts.ContextDir, "context", "",
		"build context directory (default: <data>/build)")

	return cmd
}

// runBuild executes the build command logic
func runBuild(opts *BuildOptions, taskID string) error {
	task, err := tasks.DefaultRegistry().Get(taskID)
	if err != nil {
		return fmt.Errorf("unknown task %q: %w", taskID, err)
	}

	tag := opts.Tag
	if tag == "" {
		tag = task.Image
	}
	if tag == "" {
		return fmt.Errorf("task %s has no default image, use --tag", taskID)
	}
	repo := opts.Repo
	if repo == "" {
		repo = task.RepoURL
	}
	branch := opts.Branch
	if branch == "" {
		branch = task.DefaultBranch
	}

	cfg := config.NewDefaultConfig()
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	contextDir := opts.ContextDir
	if contextDir == "" {
		contextDir = cfg.Storage.GetBuildDir()
	}

	// The image embeds this binary as its entry point.
	if err := stageSelf(contextDir); err != nil {
		return err
	}

	profiles, err := config.GetOrCreateBuildProfiles(cfg.Storage.ConfigDir)
	if err != nil {
		return err
	}
	profile, err := profiles.Get(runtime.GOARCH)
	if err != nil {
		return err
	}
	profile = cpufeat.Restrict(profile, cpufeat.Detect())

	eventCh := make(chan string, 100)
	done := make(chan struct{})
	pd := newProgressDisplay()
	go func() {
		defer close(done)
		for event := range eventCh {
			pd.update(event)
		}
		pd.finish()
	}()

	buildErr := imagebuild.Build(context.Background(), &imagebuild.BuildOptions{
		Tag:          tag,
		Profile:      profile,
		Env:          &cfg.Build,
		RepoURL:      repo,
		Branch:       branch,
		ContextDir:   contextDir,
		EventChannel: eventCh,
	})
	close(eventCh)
	<-done

	if buildErr != nil {
		return fmt.Errorf("failed to build image: %w", buildErr)
	}

	fmt.Printf("\nImage %s built\n", tag)
	fmt.Printf("Start an environment with: stux up %s --image %s\n", taskID, tag)
	return nil
}

// stageSelf copies the running binary into the build context as "stux" so
// the Dockerfile can COPY it into the final image.
func stageSelf(contextDir string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve own executable: %w", err)
	}

	if err := os.MkdirAll(contextDir, 0o755); err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}

	src, err := os.Open(exe)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", exe, err)
	}
	defer src.Close()

	dstPath := filepath.Join(contextDir, "stux")
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to stage binary: %w", err)
	}
	return nil
}
