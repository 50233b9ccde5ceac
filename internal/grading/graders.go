package grading

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/stuxbench/stux/internal/logger"
	"github.com/stuxbench/stux/internal/shell"
	"github.com/stuxbench/stux/internal/tasks"
	"github.com/stuxbench/stux/internal/workspace"
)

// trimOutput keeps the tail of test output for metadata, where the verdict
// summary lives.
func trimOutput(out string, max int) string {
	if len(out) <= max {
		return out
	}
	return out[len(out)-max:]
}

// restoreTimeout bounds workspace restoration steps (patch reversal, branch
// switch-back, stash pop).
const restoreTimeout = 30 * time.Second

// restoreContext derives a context for workspace restoration that survives
// cancellation of the grading context. A grade cut short by a client
// disconnect or deadline must still leave the workspace clean.
func restoreContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
}

// PatchVerifiedGrader checks whether a vulnerability has been fixed by
// applying a protected test patch and running the task's test command.
//
// The patch adds the hidden security tests to the working tree; it is
// reversed after the run regardless of outcome so the workspace keeps only
// the agent's changes. A passing test run scores 1.0, anything else 0.0.
type PatchVerifiedGrader struct {
	// Task supplies the test command and timeout.
	Task *tasks.Spec

	// PatchFile is the path to the protected patch adding the tests.
	PatchFile string

	// WorkspaceDir overrides the task workspace when non-empty.
	WorkspaceDir string
}

// Name implements Grader.
func (g *PatchVerifiedGrader) Name() string { return "PatchVerifiedGrader" }

// Compute implements Grader.
func (g *PatchVerifiedGrader) Compute(ctx context.Context) (float64, map[string]interface{}) {
	metadata := map[string]interface{}{}

	dir := g.WorkspaceDir
	if dir == "" {
		dir = g.Task.WorkspaceDir
	}
	ws := workspace.New(dir, g.Task.RepoURL)

	patch, err := os.ReadFile(g.PatchFile)
	if err != nil {
		metadata["error"] = fmt.Sprintf("failed to read protected test patch: %v", err)
		return 0.0, metadata
	}

	if err := ws.ApplyPatch(ctx, string(patch)); err != nil {
		metadata["error"] = fmt.Sprintf("failed to apply test patch: %v", err)
		return 0.0, metadata
	}
	defer func() {
		revertCtx, cancel := restoreContext(ctx)
		defer cancel()
		if err := ws.ReversePatch(revertCtx, string(patch)); err != nil {
			logger.Warn("Failed to reverse test patch: %v", err)
		}
	}()

	result, err := runTaskTests(ctx, g.Task, dir)
	if err != nil {
		metadata["error"] = err.Error()
		return 0.0, metadata
	}

	metadata["test_output"] = trimOutput(result.Output(), 1500)
	if result.TimedOut {
		metadata["vulnerability_fixed"] = false
		metadata["error"] = "test run timed out"
		return 0.0, metadata
	}
	if result.ExitCode == 0 {
		metadata["vulnerability_fixed"] = true
		return 1.0, metadata
	}
	metadata["vulnerability_fixed"] = false
	return 0.0, metadata
}

// runTaskTests runs the task's test command in the workspace with the task's
// timeout (default 60 seconds).
func runTaskTests(ctx context.Context, task *tasks.Spec, dir string) (*shell.Result, error) {
	if len(task.TestCommand) == 0 {
		return nil, fmt.Errorf("task %s has no test command", task.ID)
	}

	timeout := time.Duration(task.TestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	runner := shell.NewRunner(dir)
	result, err := runner.Run(ctx, shell.Command{
		Name:    task.TestCommand[0],
		Args:    task.TestCommand[1:],
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run tests: %w", err)
	}
	return result, nil
}

// GradeTask runs the configured graders for a task and combines them.
//
// Marker tasks grade on the marker alone; test tasks grade on the protected
// patch (when patchFile is set) or on the branch-based evaluation flow.
func GradeTask(ctx context.Context, task *tasks.Spec, workspaceDir, patchFile string) (*Grade, error) {
	if workspaceDir == "" {
		workspaceDir = task.WorkspaceDir
	}

	var sub SubGrade
	switch {
	case task.Marker != nil:
		sub = RunGrader(ctx, &MarkerGrader{Task: task, WorkspaceDir: workspaceDir}, 1.0)
	case patchFile != "":
		sub = RunGrader(ctx, &PatchVerifiedGrader{Task: task, PatchFile: patchFile, WorkspaceDir: workspaceDir}, 1.0)
	default:
		sub = RunGrader(ctx, &TestSuiteGrader{Task: task, WorkspaceDir: workspaceDir}, 1.0)
	}

	return FromSubGrades([]SubGrade{sub})
}
