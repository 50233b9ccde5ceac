// Package launcher supervises the two in-container processes: the
// environment-init process and the controller serving the tool protocol.
//
// The environment process is started first and the controller only once
// the readiness sentinel appears, so the controller never races an
// unprepared workspace. If the environment process dies before signalling
// readiness, the launch fails immediately instead of hanging on the wait.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/stuxbench/stux/internal/envinit"
	"github.com/stuxbench/stux/internal/logger"
)

// DefaultReadyTimeout bounds how long the launcher waits for the
// environment process to signal readiness.
const DefaultReadyTimeout = 60 * time.Second

// Launcher runs an environment command and a server command as a pair.
type Launcher struct {
	// EnvCommand is the argv of the environment-init process.
	EnvCommand []string
	// ServerCommand is the argv of the controller process. It inherits
	// stdin/stdout so a stdio protocol server works unmodified.
	ServerCommand []string
	// RunDir is polled for the readiness sentinel.
	RunDir string
	// ReadyTimeout overrides DefaultReadyTimeout when positive.
	ReadyTimeout time.Duration
}

// Run starts both processes and blocks until the server process exits.
// The environment process is terminated once the server is done. The
// returned error reflects the first failure.
func (l *Launcher) Run(ctx context.Context) error {
	if len(l.EnvCommand) == 0 || len(l.ServerCommand) == 0 {
		return fmt.Errorf("launcher requires both an environment and a server command")
	}

	timeout := l.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A sentinel surviving from a previous run (SIGKILL, OOM) would satisfy
	// the readiness wait before this run's environment process has done
	// anything, so the wait must start from a clean slate.
	if err := envinit.ClearReady(l.RunDir); err != nil {
		return fmt.Errorf("failed to clear stale readiness sentinel: %w", err)
	}

	envCmd := exec.CommandContext(ctx, l.EnvCommand[0], l.EnvCommand[1:]...)
	envCmd.Stdout = os.Stderr
	envCmd.Stderr = os.Stderr

	logger.Info("Starting environment process: %v", l.EnvCommand)
	if err := envCmd.Start(); err != nil {
		return fmt.Errorf("failed to start environment process: %w", err)
	}

	envExited := make(chan error, 1)
	go func() {
		envExited <- envCmd.Wait()
	}()

	if err := l.waitForEnvironment(ctx, envExited, timeout); err != nil {
		terminate(envCmd)
		<-envExited
		return err
	}

	serverCmd := exec.CommandContext(ctx, l.ServerCommand[0], l.ServerCommand[1:]...)
	serverCmd.Stdin = os.Stdin
	serverCmd.Stdout = os.Stdout
	serverCmd.Stderr = os.Stderr

	logger.Info("Environment ready, starting server process: %v", l.ServerCommand)
	serverErr := serverCmd.Run()

	terminate(envCmd)
	select {
	case <-envExited:
	case <-time.After(10 * time.Second):
		logger.Warn("Environment process did not exit after terminate, killing")
		envCmd.Process.Kill()
		<-envExited
	}

	if serverErr != nil && ctx.Err() == nil {
		return fmt.Errorf("server process failed: %w", serverErr)
	}
	return nil
}

// waitForEnvironment blocks until the readiness sentinel appears, failing
// fast when the environment process exits first.
func (l *Launcher) waitForEnvironment(ctx context.Context, envExited chan error, timeout time.Duration) error {
	ready := make(chan error, 1)
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ready <- envinit.WaitReady(waitCtx, l.RunDir, timeout)
	}()

	select {
	case err := <-envExited:
		// Re-buffer so the caller's drain after terminate still completes.
		envExited <- err
		if err != nil {
			return fmt.Errorf("environment process exited before readiness: %w", err)
		}
		return fmt.Errorf("environment process exited before readiness")
	case err := <-ready:
		if err != nil {
			return fmt.Errorf("environment readiness wait failed: %w", err)
		}
		return nil
	}
}

// terminate asks a started process to shut down gracefully.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && cmd.ProcessState == nil {
		logger.Debug("Failed to signal process %d: %v", cmd.Process.Pid, err)
	}
}
