package grading

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stuxbench/stux/internal/logger"
	"github.com/stuxbench/stux/internal/tasks"
	"github.com/stuxbench/stux/internal/workspace"
)

// TestSuiteGrader evaluates a patch attempt using the hidden tests stored on
// the task's test branch.
//
// The flow mirrors the evaluation procedure of the benchmark:
//  1. Stash the agent's uncommitted changes so the branch switch is clean.
//  2. Checkout the test branch to obtain the security test file.
//  3. Copy the test file aside.
//  4. Switch back to the working branch.
//  5. Restore the agent's stashed changes.
//  6. Reinsert the test file into the working tree.
//  7. Run the task's test command.
//
// Any step that fails scores 0.0 with the failure recorded in metadata; a
// timed-out test run also scores 0.0. Only a passing run scores 1.0.
type TestSuiteGrader struct {
	Task *tasks.Spec

	// WorkspaceDir overrides the task workspace when non-empty.
	WorkspaceDir string
}

// Name implements Grader.
func (g *TestSuiteGrader) Name() string { return "TestSuiteGrader" }

// Compute implements Grader.
func (g *TestSuiteGrader) Compute(ctx context.Context) (float64, map[string]interface{}) {
	metadata := map[string]interface{}{}
	fail := func(format string, args ...interface{}) (float64, map[string]interface{}) {
		msg := fmt.Sprintf(format, args...)
		logger.Warn("Evaluation failed for task %s: %s", g.Task.ID, msg)
		metadata["error"] = msg
		return 0.0, metadata
	}

	dir := g.WorkspaceDir
	if dir == "" {
		dir = g.Task.WorkspaceDir
	}
	ws := workspace.New(dir, g.Task.RepoURL)

	// restore runs a restoration step on a context that survives ctx being
	// cancelled mid-grade.
	restore := func(op func(context.Context) error) error {
		rctx, cancel := restoreContext(ctx)
		defer cancel()
		return op(rctx)
	}

	stashed, err := ws.StashPush(ctx, "agent_patch")
	if err != nil {
		return fail("failed to stash agent changes: %v", err)
	}
	stashRestored := false
	defer func() {
		if stashed && !stashRestored {
			if err := restore(ws.StashPop); err != nil {
				logger.Warn("Failed to restore agent changes: %v", err)
			}
		}
	}()

	if err := ws.CheckoutBranch(ctx, g.Task.TestBranch); err != nil {
		return fail("failed to checkout test branch %s: %v", g.Task.TestBranch, err)
	}
	onTestBranch := true
	defer func() {
		if onTestBranch {
			if err := restore(ws.CheckoutPrevious); err != nil {
				logger.Warn("Failed to switch back to working branch: %v", err)
			}
		}
	}()

	testFilePath := filepath.Join(dir, g.Task.TestFile)
	testData, err := os.ReadFile(testFilePath)
	if err != nil {
		return fail("test file not found on %s branch at %s: %v", g.Task.TestBranch, testFilePath, err)
	}

	if err := restore(ws.CheckoutPrevious); err != nil {
		return fail("failed to switch back to working branch: %v", err)
	}
	onTestBranch = false

	if stashed {
		if err := restore(ws.StashPop); err != nil {
			return fail("failed to restore agent changes: %v", err)
		}
		stashRestored = true
	}

	if err := os.MkdirAll(filepath.Dir(testFilePath), 0o755); err != nil {
		return fail("failed to create test directory: %v", err)
	}
	if err := os.WriteFile(testFilePath, testData, 0o644); err != nil {
		return fail("failed to reinsert test file: %v", err)
	}

	result, err := runTaskTests(ctx, g.Task, dir)
	if err != nil {
		return fail("%v", err)
	}

	metadata["test_output"] = trimOutput(result.Output(), 1500)
	if result.TimedOut {
		metadata["error"] = fmt.Sprintf("unit tests timed out after %d seconds", g.Task.TestTimeoutSeconds)
		return 0.0, metadata
	}
	if result.ExitCode == 0 {
		metadata["vulnerability_fixed"] = true
		return 1.0, metadata
	}
	metadata["vulnerability_fixed"] = false
	return 0.0, metadata
}
