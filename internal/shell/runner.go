// Package shell provides command execution with timeouts for the stux
// controller.
//
// The runner is the single place where the controller shells out: the bash
// tool, workspace git operations, and graders all execute commands through
// it. Commands run with a bounded timeout and capture stdout and stderr
// separately.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout is applied when a Command does not specify its own timeout.
const DefaultTimeout = 30 * time.Second

// Command describes a single command execution request.
type Command struct {
	// Name is the program to run. Ignored when Shell is set.
	Name string

	// Args are the program arguments. Ignored when Shell is set.
	Args []string

	// Shell, when non-empty, is a command line executed via "sh -c".
	Shell string

	// Dir is the working directory. Empty means the process default.
	Dir string

	// Env is appended to the current process environment.
	Env []string

	// Stdin is fed to the process standard input when non-empty.
	Stdin string

	// Timeout bounds the execution time. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Result holds the outcome of a command execution.
//
// A non-zero exit code is a normal result, not an error: callers inspect
// ExitCode to decide what a failure means in their domain.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Output returns stdout and stderr joined, for log and metadata reporting.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes commands in a fixed default working directory.
type Runner struct {
	// workDir is used when a Command has no Dir of its own.
	workDir string
}

// NewRunner creates a runner with the given default working directory.
func NewRunner(workDir string) *Runner {
	return &Runner{workDir: workDir}
}

// WorkDir returns the runner's default working directory.
func (r *Runner) WorkDir() string {
	return r.workDir
}

// Run executes a command and returns its captured result.
//
// The command is killed when its timeout elapses or the context is
// cancelled; a timeout is reported through Result.TimedOut rather than an
// error. Errors are reserved for failures to start the process at all.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var execCmd *exec.Cmd
	if cmd.Shell != "" {
		execCmd = exec.CommandContext(runCtx, "sh", "-c", cmd.Shell)
	} else {
		if cmd.Name == "" {
			return nil, fmt.Errorf("command name is required")
		}
		execCmd = exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	}

	dir := cmd.Dir
	if dir == "" {
		dir = r.workDir
	}
	execCmd.Dir = dir

	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != "" {
		execCmd.Stdin = bytes.NewBufferString(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("command timed out after %s", timeout)
		return result, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		// The process never started (command not found, bad dir, ...)
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}

	result.ExitCode = 0
	return result, nil
}
