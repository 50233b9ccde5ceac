package envinit

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuxbench/stux/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return config.NewConfigWithCustomDirs(filepath.Join(base, "config"), filepath.Join(base, "data"))
}

func TestInitWritesEnvAndSentinel(t *testing.T) {
	cfg := testConfig(t)
	runDir := filepath.Join(t.TempDir(), "run")
	workspace := t.TempDir()

	env, err := Init(cfg, runDir, workspace)
	require.NoError(t, err)

	assert.Equal(t, runtime.GOARCH, env.Arch)
	assert.Equal(t, workspace, env.WorkspaceDir)
	assert.Equal(t, cfg.Build.PythonVersion, env.PythonVersion)

	_, err = os.Stat(filepath.Join(runDir, "env.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(runDir, "env.ready"))
	assert.NoError(t, err)

	loaded, err := ReadEnvironment(runDir)
	require.NoError(t, err)
	assert.Equal(t, env.WorkspaceDir, loaded.WorkspaceDir)
}

func TestInitMissingWorkspace(t *testing.T) {
	cfg := testConfig(t)
	runDir := t.TempDir()

	_, err := Init(cfg, runDir, filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)

	// No sentinel on failure.
	_, statErr := os.Stat(filepath.Join(runDir, "env.ready"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInitWorkspaceIsFile(t *testing.T) {
	cfg := testConfig(t)
	runDir := t.TempDir()
	file := filepath.Join(t.TempDir(), "ws")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := Init(cfg, runDir, file)
	assert.Error(t, err)
}

func TestInitRecordsCacheDirs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Build.CcacheDir = "/root/.cache/ccache"
	cfg.Build.UVCacheDir = "/root/.cache/uv"
	runDir := t.TempDir()

	env, err := Init(cfg, runDir, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/root/.cache/ccache", env.CacheDirs["ccache"])
	assert.Equal(t, "/root/.cache/uv", env.CacheDirs["uv"])
}

func TestInitRemovesStaleSentinelOnFailure(t *testing.T) {
	cfg := testConfig(t)
	runDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "env.ready"), []byte("stale\n"), 0644))

	// env.json cannot be written over a directory, so init fails after the
	// stale sentinel has been cleared.
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "env.json"), 0o755))
	_, err := Init(cfg, runDir, t.TempDir())
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(runDir, "env.ready"))
	assert.True(t, os.IsNotExist(statErr), "stale sentinel must not survive a failed init")
}

func TestClearReady(t *testing.T) {
	runDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "env.ready"), []byte("stale\n"), 0644))

	require.NoError(t, ClearReady(runDir))
	_, err := os.Stat(filepath.Join(runDir, "env.ready"))
	assert.True(t, os.IsNotExist(err))

	// Absent sentinel is not an error.
	assert.NoError(t, ClearReady(runDir))
}

func TestWaitReadyImmediate(t *testing.T) {
	runDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "env.ready"), []byte("ok\n"), 0644))

	err := WaitReady(context.Background(), runDir, time.Second)
	assert.NoError(t, err)
}

func TestWaitReadyAppearsLater(t *testing.T) {
	runDir := t.TempDir()

	go func() {
		time.Sleep(120 * time.Millisecond)
		os.WriteFile(filepath.Join(runDir, "env.ready"), []byte("ok\n"), 0644)
	}()

	err := WaitReady(context.Background(), runDir, 5*time.Second)
	assert.NoError(t, err)
}

func TestWaitReadyTimeout(t *testing.T) {
	err := WaitReady(context.Background(), t.TempDir(), 200*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestWaitReadyContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := WaitReady(ctx, t.TempDir(), 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadEnvironmentMissing(t *testing.T) {
	_, err := ReadEnvironment(t.TempDir())
	assert.Error(t, err)
}
