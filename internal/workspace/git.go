// Package workspace provides git operations on a task workspace.
//
// The workspace is the checkout of the vulnerable source tree that the agent
// patches. Task setup strips its history so the agent cannot diff against
// the fix; grading later restores branches from the task's remote to pull in
// the hidden tests.
//
// All operations shell out to git. Prompts are disabled via
// GIT_TERMINAL_PROMPT=0 so that a missing credential fails fast instead of
// hanging the controller.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stuxbench/stux/internal/logger"
	"github.com/stuxbench/stux/internal/shell"
)

// gitTimeout bounds individual git invocations. Fetches over the network are
// the slowest operation and get a larger budget.
const (
	gitTimeout   = 30 * time.Second
	fetchTimeout = 120 * time.Second
)

// Workspace wraps git operations on a single checkout directory.
type Workspace struct {
	// Dir is the workspace root (e.g., /workspace/vllm).
	Dir string

	// RemoteURL is re-added as origin when history was stripped and a
	// branch has to be fetched again.
	RemoteURL string

	runner *shell.Runner
}

// New creates a workspace handle for the given directory.
func New(dir, remoteURL string) *Workspace {
	return &Workspace{
		Dir:       dir,
		RemoteURL: remoteURL,
		runner:    shell.NewRunner(dir),
	}
}

// git runs a git command in the workspace and returns its result.
func (w *Workspace) git(ctx context.Context, timeout time.Duration, args ...string) (*shell.Result, error) {
	return w.runner.Run(ctx, shell.Command{
		Name:    "git",
		Args:    args,
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
		Timeout: timeout,
	})
}

// Setup prepares the workspace for an agent run.
//
// It checks out the requested branch, then strips the git history and
// re-initializes the repository with a single commit. The agent therefore
// starts from a clean tree with no access to upstream fix commits.
//
// Setup is idempotent: running it again resets the workspace to the same
// state.
func (w *Workspace) Setup(ctx context.Context, branch string) error {
	logger.Info("Setting up workspace %s at branch %s", w.Dir, branch)

	res, err := w.git(ctx, gitTimeout, "checkout", branch)
	if err != nil {
		return fmt.Errorf("failed to run git checkout: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to checkout %s: %s", branch, res.Stderr)
	}

	if err := os.RemoveAll(filepath.Join(w.Dir, ".git")); err != nil {
		return fmt.Errorf("failed to remove git history: %w", err)
	}

	steps := [][]string{
		{"init"},
		{"add", "."},
		{"commit", "-m", fmt.Sprintf("Initial commit from %s", branch)},
	}
	for _, args := range steps {
		res, err := w.git(ctx, gitTimeout, args...)
		if err != nil {
			return fmt.Errorf("failed to run git %s: %w", args[0], err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("git %s failed: %s", args[0], res.Stderr)
		}
	}

	logger.Info("Workspace setup complete: %s", w.Dir)
	return nil
}

// CheckoutBranch switches the workspace to the named branch, preserving
// whatever git history exists.
//
// When Setup previously stripped the history, the repository is
// re-initialized with the task remote and all branches fetched. When a plain
// checkout fails (branch unknown locally), the branch is fetched from origin
// and checked out as a tracking branch.
func (w *Workspace) CheckoutBranch(ctx context.Context, branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name is required")
	}

	if _, err := os.Stat(filepath.Join(w.Dir, ".git")); os.IsNotExist(err) {
		if err := w.reinitWithRemote(ctx); err != nil {
			return err
		}
	}

	res, err := w.git(ctx, gitTimeout, "checkout", branch)
	if err != nil {
		return fmt.Errorf("failed to run git checkout: %w", err)
	}
	if res.ExitCode == 0 {
		return nil
	}

	// Branch unknown locally: fetch it and create a tracking branch.
	if res, err = w.git(ctx, fetchTimeout, "fetch", "origin", branch); err != nil {
		return fmt.Errorf("failed to run git fetch: %w", err)
	} else if res.ExitCode != 0 {
		return fmt.Errorf("failed to fetch branch %s: %s", branch, res.Stderr)
	}

	res, err = w.git(ctx, gitTimeout, "checkout", "-b", branch, "origin/"+branch)
	if err != nil {
		return fmt.Errorf("failed to run git checkout: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to checkout %s: %s", branch, res.Stderr)
	}
	return nil
}

// reinitWithRemote restores a stripped repository: init, add the task remote
// as origin, fetch everything.
func (w *Workspace) reinitWithRemote(ctx context.Context) error {
	if w.RemoteURL == "" {
		return fmt.Errorf("workspace has no git history and no remote URL is configured")
	}

	logger.Info("Re-initializing stripped workspace with remote %s", w.RemoteURL)

	if res, err := w.git(ctx, gitTimeout, "init"); err != nil {
		return fmt.Errorf("failed to run git init: %w", err)
	} else if res.ExitCode != 0 {
		return fmt.Errorf("git init failed: %s", res.Stderr)
	}

	// remote add may report an existing origin on repeated calls; that is
	// fine because fetch below validates the remote either way.
	if _, err := w.git(ctx, gitTimeout, "remote", "add", "origin", w.RemoteURL); err != nil {
		return fmt.Errorf("failed to run git remote add: %w", err)
	}

	if res, err := w.git(ctx, fetchTimeout, "fetch", "--all"); err != nil {
		return fmt.Errorf("failed to run git fetch: %w", err)
	} else if res.ExitCode != 0 {
		return fmt.Errorf("git fetch failed: %s", res.Stderr)
	}

	return nil
}

// CheckoutPrevious switches back to the previously checked out branch
// (git checkout -).
func (w *Workspace) CheckoutPrevious(ctx context.Context) error {
	res, err := w.git(ctx, gitTimeout, "checkout", "-")
	if err != nil {
		return fmt.Errorf("failed to run git checkout: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to switch back to previous branch: %s", res.Stderr)
	}
	return nil
}

// StashPush stashes uncommitted changes under the given message.
//
// The returned bool reports whether anything was actually stashed; popping
// an empty stash would otherwise fail.
func (w *Workspace) StashPush(ctx context.Context, message string) (bool, error) {
	res, err := w.git(ctx, gitTimeout, "stash", "push", "-m", message)
	if err != nil {
		return false, fmt.Errorf("failed to run git stash: %w", err)
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("git stash push failed: %s", res.Stderr)
	}
	// git prints "No local changes to save" and exits 0 when the tree is clean.
	stashed := !containsNoChanges(res.Stdout)
	return stashed, nil
}

// StashPop restores the most recently stashed changes.
func (w *Workspace) StashPop(ctx context.Context) error {
	res, err := w.git(ctx, gitTimeout, "stash", "pop")
	if err != nil {
		return fmt.Errorf("failed to run git stash pop: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git stash pop failed: %s", res.Stderr)
	}
	return nil
}

// ApplyPatch applies a unified diff to the workspace.
func (w *Workspace) ApplyPatch(ctx context.Context, patch string) error {
	res, err := w.runner.Run(ctx, shell.Command{
		Name:    "git",
		Args:    []string{"apply"},
		Stdin:   patch,
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
		Timeout: gitTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to run git apply: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to apply patch: %s", res.Stderr)
	}
	return nil
}

// ReversePatch reverses a previously applied unified diff.
func (w *Workspace) ReversePatch(ctx context.Context, patch string) error {
	res, err := w.runner.Run(ctx, shell.Command{
		Name:    "git",
		Args:    []string{"apply", "--reverse"},
		Stdin:   patch,
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
		Timeout: gitTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to run git apply --reverse: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to reverse patch: %s", res.Stderr)
	}
	return nil
}

func containsNoChanges(out string) bool {
	return strings.Contains(out, "No local changes to save")
}
