package imagebuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/logger"
)

// BuildOptions describes one image build.
type BuildOptions struct {
	// Tag is the image reference to produce, e.g. "stuxbench/vllm-cpu:latest".
	Tag string
	// Profile selects base image and instruction-set flags.
	Profile *config.BuildProfile
	// Env carries index URLs, cache dirs and the repository token.
	Env *config.BuildEnv
	// RepoURL and Branch locate the engine sources to compile.
	RepoURL string
	Branch  string
	// ContextDir is where the Dockerfile is written and the build runs.
	// It must contain the controller binary as "stux".
	ContextDir string
	// EventChannel receives progress lines when non-nil. Lines are
	// prefixed "DOCKER_CR|" or "DOCKER_LF|" matching docker's own
	// carriage-return progress rendering.
	EventChannel chan<- string
}

// Build renders the Dockerfile, pre-pulls the base image and runs
// `docker build`. Progress is streamed through opts.EventChannel.
//
// The repository token travels only as a --build-arg value and is never
// logged or echoed into an event.
func Build(ctx context.Context, opts *BuildOptions) error {
	if opts.Tag == "" {
		return fmt.Errorf("image tag cannot be empty")
	}
	if opts.ContextDir == "" {
		return fmt.Errorf("build context directory cannot be empty")
	}

	dockerfile, err := RenderDockerfile(opts.Profile, opts.Env, opts.RepoURL, opts.Branch)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.ContextDir, 0755); err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	dockerfilePath := filepath.Join(opts.ContextDir, "Dockerfile")
	if err := os.WriteFile(dockerfilePath, []byte(dockerfile), 0644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	if _, err := os.Stat(filepath.Join(opts.ContextDir, "stux")); err != nil {
		return fmt.Errorf("controller binary missing from build context: %w", err)
	}

	if err := EnsureBaseImage(ctx, opts.Profile.BaseImage, opts.EventChannel); err != nil {
		return err
	}

	args := []string{"build", "-t", opts.Tag, "-f", dockerfilePath}
	for _, a := range buildArgs(opts) {
		args = append(args, "--build-arg", a)
	}
	args = append(args, opts.ContextDir)

	logger.Info("Building Docker image: %s (base: %s, arch: %s)", opts.Tag, opts.Profile.BaseImage, opts.Profile.Arch)
	sendEvent(opts.EventChannel, fmt.Sprintf("Building image %s...", opts.Tag))

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Env = append(os.Environ(), "DOCKER_BUILDKIT=1")

	if err := streamCommand(ctx, cmd, opts.EventChannel); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("build operation cancelled")
		}
		return fmt.Errorf("failed to build image %s: %w", opts.Tag, err)
	}

	sendEvent(opts.EventChannel, fmt.Sprintf("Successfully built image: %s", opts.Tag))
	logger.Info("Successfully built Docker image: %s", opts.Tag)
	return nil
}

// buildArgs assembles --build-arg values from the options. Empty values
// are skipped so the Dockerfile defaults apply.
func buildArgs(opts *BuildOptions) []string {
	var args []string
	if opts.Env.PythonVersion != "" {
		args = append(args, "PYTHON_VERSION="+opts.Env.PythonVersion)
	}
	if opts.Env.PipExtraIndexURL != "" {
		args = append(args, "PIP_EXTRA_INDEX_URL="+opts.Env.PipExtraIndexURL)
	}
	if opts.Env.UVIndexStrategy != "" {
		args = append(args, "UV_INDEX_STRATEGY="+opts.Env.UVIndexStrategy)
	}
	if opts.Env.RepoToken != "" {
		args = append(args, "GIT_REPO_TOKEN="+opts.Env.RepoToken)
	}
	args = append(args,
		"VLLM_CPU_DISABLE_AVX512="+boolArg(opts.Profile.DisableAVX512),
		"VLLM_CPU_AVX512BF16="+boolArg(opts.Profile.EnableAVX512BF16),
		"VLLM_CPU_AVX512VNNI="+boolArg(opts.Profile.EnableAVX512VNNI),
	)
	return args
}

// CheckImageExists reports whether an image is present locally.
func CheckImageExists(ctx context.Context, imageName string) (bool, error) {
	if imageName == "" {
		return false, fmt.Errorf("image name cannot be empty")
	}

	cmd := exec.CommandContext(ctx, "docker", "images", "-q", imageName)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("operation cancelled")
		}
		return false, fmt.Errorf("failed to check Docker image: %w", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// EnsureBaseImage pulls imageName if it is not already local.
func EnsureBaseImage(ctx context.Context, imageName string, eventCh chan<- string) error {
	exists, err := CheckImageExists(ctx, imageName)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("Base image %s already exists locally", imageName)
		return nil
	}

	logger.Info("Pulling base image: %s", imageName)
	sendEvent(eventCh, fmt.Sprintf("Pulling base image: %s", imageName))

	cmd := exec.CommandContext(ctx, "docker", "pull", imageName)
	if err := streamCommand(ctx, cmd, eventCh); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("pull operation cancelled")
		}
		return fmt.Errorf("failed to pull base image %s: %w", imageName, err)
	}
	return nil
}

func sendEvent(eventCh chan<- string, msg string) {
	if eventCh != nil {
		select {
		case eventCh <- msg:
		default:
			// Channel full or closed, skip
		}
	}
}

// streamCommand runs cmd under a PTY so docker's native progress rendering
// survives, forwarding each line as a DOCKER_CR or DOCKER_LF event.
func streamCommand(ctx context.Context, cmd *exec.Cmd, eventCh chan<- string) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start command with pty: %w", err)
	}
	defer ptmx.Close()

	var line []byte
	buf := make([]byte, 1)
	ptmx.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	for {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			cmd.Wait()
			return ctx.Err()
		default:
		}

		n, err := ptmx.Read(buf)
		if n > 0 {
			switch buf[0] {
			case '\r':
				if len(line) > 0 {
					// Peek for a following \n (CRLF sequence).
					next := make([]byte, 1)
					ptmx.SetReadDeadline(time.Now().Add(1 * time.Millisecond))
					nn, _ := ptmx.Read(next)

					if nn > 0 && next[0] == '\n' {
						sendEvent(eventCh, "DOCKER_LF|"+string(line))
					} else {
						sendEvent(eventCh, "DOCKER_CR|"+string(line))
						if nn > 0 {
							line = append(line[:0], next[0])
							ptmx.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
							continue
						}
					}
					line = line[:0]
				}
			case '\n':
				if len(line) > 0 {
					sendEvent(eventCh, "DOCKER_LF|"+string(line))
					line = line[:0]
				}
			default:
				line = append(line, buf[0])
			}
			ptmx.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		}

		if err == io.EOF {
			if len(line) > 0 {
				sendEvent(eventCh, "DOCKER_LF|"+string(line))
			}
			break
		}
		if err != nil {
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				ptmx.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
				continue
			}
			// PTY closing when the process exits also lands here; let
			// cmd.Wait() decide whether there was a real failure.
			break
		}
	}

	return cmd.Wait()
}
