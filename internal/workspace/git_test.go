package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a git repository with one commit on main and a second
// branch carrying a test file.
func initRepo(t *testing.T) string {
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
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.py"), []byte("print('v1')\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")

	run("checkout", "-b", "hidden-tests")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tests", "test_fix.py"), []byte("def test_ok():\n    pass\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "add hidden tests")
	run("checkout", "main")

	return dir
}

func TestSetupStripsHistory(t *testing.T) {
	dir := initRepo(t)
	ws := New(dir, "")

	require.NoError(t, ws.Setup(context.Background(), "main"))

	// History was stripped and re-initialized with a single commit.
	cmd := exec.Command("git", "rev-list", "--count", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(out))

	// The hidden test branch is gone.
	cmd = exec.Command("git", "rev-parse", "--verify", "hidden-tests")
	cmd.Dir = dir
	assert.Error(t, cmd.Run())
}

func TestSetupUnknownBranch(t *testing.T) {
	dir := initRepo(t)
	ws := New(dir, "")

	err := ws.Setup(context.Background(), "no-such-branch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to checkout")
}

func TestCheckoutBranchPreservesHistory(t *testing.T) {
	dir := initRepo(t)
	ws := New(dir, "")

	require.NoError(t, ws.CheckoutBranch(context.Background(), "hidden-tests"))
	assert.FileExists(t, filepath.Join(dir, "tests", "test_fix.py"))

	require.NoError(t, ws.CheckoutPrevious(context.Background()))
	assert.NoFileExists(t, filepath.Join(dir, "tests", "test_fix.py"))
}

func TestCheckoutBranchAfterStripFetchesFromRemote(t *testing.T) {
	remote := initRepo(t)
	dir := initRepo(t)
	ws := New(dir, remote)

	require.NoError(t, ws.Setup(context.Background(), "main"))
	require.NoError(t, os.RemoveAll(filepath.Join(dir, ".git")))

	require.NoError(t, ws.CheckoutBranch(context.Background(), "hidden-tests"))
	assert.FileExists(t, filepath.Join(dir, "tests", "test_fix.py"))
}

func TestStashRoundTrip(t *testing.T) {
	dir := initRepo(t)
	ws := New(dir, "")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.py"), []byte("print('patched')\n"), 0o644))

	stashed, err := ws.StashPush(context.Background(), "agent_patch")
	require.NoError(t, err)
	assert.True(t, stashed)

	data, err := os.ReadFile(filepath.Join(dir, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('v1')\n", string(data))

	require.NoError(t, ws.StashPop(context.Background()))
	data, err = os.ReadFile(filepath.Join(dir, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('patched')\n", string(data))
}

func TestStashPushCleanTree(t *testing.T) {
	dir := initRepo(t)
	ws := New(dir, "")

	stashed, err := ws.StashPush(context.Background(), "agent_patch")
	require.NoError(t, err)
	assert.False(t, stashed)
}

func TestApplyAndReversePatch(t *testing.T) {
	dir := initRepo(t)
	ws := New(dir, "")

	patch := `diff --git a/code.py b/code.py
index 0000000..1111111 100644
--- a/code.py
+++ b/code.py
@@ -1 +1 @@
-print('v1')
+print('v2')
`
	require.NoError(t, ws.ApplyPatch(context.Background(), patch))
	data, err := os.ReadFile(filepath.Join(dir, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('v2')\n", string(data))

	require.NoError(t, ws.ReversePatch(context.Background(), patch))
	data, err = os.ReadFile(filepath.Join(dir, "code.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('v1')\n", string(data))
}

func TestApplyPatchRejectsGarbage(t *testing.T) {
	dir := initRepo(t)
	ws := New(dir, "")

	err := ws.ApplyPatch(context.Background(), "not a patch")
	assert.Error(t, err)
}
