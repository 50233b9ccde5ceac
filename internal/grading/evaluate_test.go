package grading

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuxbench/stux/internal/tasks"
)

// initTaskRepo builds a workspace repo with a working branch and a test
// branch carrying the hidden test file.
func initTaskRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.sh"), []byte("#!/bin/sh\nexit 1\n"), 0o755))
	run("add", ".")
	run("commit", "-m", "vulnerable code")

	// The hidden test passes only when code.sh exits 0.
	run("checkout", "-b", "fix-tests")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tests", "check.sh"), []byte("#!/bin/sh\nexec sh code.sh\n"), 0o755))
	run("add", ".")
	run("commit", "-m", "hidden tests")
	run("checkout", "main")

	return dir
}

func suiteTask(dir string) *tasks.Spec {
	return &tasks.Spec{
		ID:                 "cve-test",
		DefaultBranch:      "main",
		TestBranch:         "fix-tests",
		TestFile:           "tests/check.sh",
		TestCommand:        []string{"sh", "tests/check.sh"},
		TestTimeoutSeconds: 30,
		WorkspaceDir:       dir,
	}
}

func TestTestSuiteGraderUnpatchedFails(t *testing.T) {
	dir := initTaskRepo(t)

	score, metadata := (&TestSuiteGrader{Task: suiteTask(dir)}).Compute(context.Background())
	assert.Equal(t, 0.0, score)
	assert.Equal(t, false, metadata["vulnerability_fixed"])
}

func TestTestSuiteGraderPatchedPasses(t *testing.T) {
	dir := initTaskRepo(t)

	// The agent's uncommitted patch fixes the vulnerability.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755))

	score, metadata := (&TestSuiteGrader{Task: suiteTask(dir)}).Compute(context.Background())
	assert.Equal(t, 1.0, score)
	assert.Equal(t, true, metadata["vulnerability_fixed"])

	// The agent's patch survives the evaluation round trip.
	data, err := os.ReadFile(filepath.Join(dir, "code.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "exit 0")
}

func TestTestSuiteGraderMissingTestBranch(t *testing.T) {
	dir := initTaskRepo(t)
	task := suiteTask(dir)
	task.TestBranch = "no-such-branch"

	score, metadata := (&TestSuiteGrader{Task: task}).Compute(context.Background())
	assert.Equal(t, 0.0, score)
	assert.Contains(t, metadata["error"], "failed to checkout test branch")
}

func TestPatchVerifiedGrader(t *testing.T) {
	dir := initTaskRepo(t)

	// Patch the vulnerability first so the added test passes.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755))

	patch := `diff --git a/tests/check.sh b/tests/check.sh
new file mode 100755
index 0000000..1111111
--- /dev/null
+++ b/tests/check.sh
@@ -0,0 +1,2 @@
+#!/bin/sh
+exec sh code.sh
`
	patchFile := filepath.Join(t.TempDir(), "tests.patch")
	require.NoError(t, os.WriteFile(patchFile, []byte(patch), 0o644))

	task := suiteTask(dir)
	score, metadata := (&PatchVerifiedGrader{Task: task, PatchFile: patchFile}).Compute(context.Background())
	assert.Equal(t, 1.0, score)
	assert.Equal(t, true, metadata["vulnerability_fixed"])

	// The test patch was reversed after grading.
	assert.NoFileExists(t, filepath.Join(dir, "tests", "check.sh"))
}

func TestPatchVerifiedGraderRevertsWhenGradeCancelled(t *testing.T) {
	dir := initTaskRepo(t)

	patch := `diff --git a/tests/check.sh b/tests/check.sh
new file mode 100755
index 0000000..1111111
--- /dev/null
+++ b/tests/check.sh
@@ -0,0 +1,2 @@
+#!/bin/sh
+exec sh code.sh
`
	patchFile := filepath.Join(t.TempDir(), "tests.patch")
	require.NoError(t, os.WriteFile(patchFile, []byte(patch), 0o644))

	// The test run outlives the grading deadline.
	task := suiteTask(dir)
	task.TestCommand = []string{"sleep", "30"}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	score, metadata := (&PatchVerifiedGrader{Task: task, PatchFile: patchFile}).Compute(ctx)
	assert.Equal(t, 0.0, score)
	assert.Contains(t, metadata["error"], "timed out")

	// The test patch is reversed even though the grading context expired.
	assert.NoFileExists(t, filepath.Join(dir, "tests", "check.sh"))
}

func TestTestSuiteGraderRestoresWhenGradeCancelled(t *testing.T) {
	dir := initTaskRepo(t)

	// The agent's uncommitted patch fixes the vulnerability.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755))

	task := suiteTask(dir)
	task.TestCommand = []string{"sleep", "30"}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	score, metadata := (&TestSuiteGrader{Task: task}).Compute(ctx)
	assert.Equal(t, 0.0, score)
	assert.Contains(t, metadata["error"], "timed out")

	// The workspace is back on the working branch with the agent's
	// patch intact even though the grading context expired.
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	assert.Equal(t, "main", strings.TrimSpace(string(out)))

	data, err := os.ReadFile(filepath.Join(dir, "code.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "exit 0")
}

func TestPatchVerifiedGraderMissingPatchFile(t *testing.T) {
	dir := initTaskRepo(t)

	score, metadata := (&PatchVerifiedGrader{
		Task:      suiteTask(dir),
		PatchFile: filepath.Join(t.TempDir(), "absent.patch"),
	}).Compute(context.Background())
	assert.Equal(t, 0.0, score)
	assert.Contains(t, metadata["error"], "failed to read protected test patch")
}

func TestGradeTaskTestSuite(t *testing.T) {
	dir := initTaskRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755))

	grade, err := GradeTask(context.Background(), suiteTask(dir), "", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, grade.Score())
}
