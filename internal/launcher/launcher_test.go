package launcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRequiresBothCommands(t *testing.T) {
	l := &Launcher{ServerCommand: []string{"true"}}
	err := l.Run(context.Background())
	require.Error(t, err)

	l = &Launcher{EnvCommand: []string{"true"}}
	err = l.Run(context.Background())
	assert.Error(t, err)
}

func TestRunHappyPath(t *testing.T) {
	runDir := t.TempDir()
	marker := filepath.Join(runDir, "server-ran")

	l := &Launcher{
		// The env process writes the sentinel itself and then lingers.
		EnvCommand:    []string{"sh", "-c", "touch " + filepath.Join(runDir, "env.ready") + " && sleep 60"},
		ServerCommand: []string{"sh", "-c", "touch " + marker},
		RunDir:        runDir,
		ReadyTimeout:  5 * time.Second,
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("launcher did not finish")
	}

	_, err := os.Stat(marker)
	assert.NoError(t, err, "server process should have run after readiness")
}

func TestRunEnvExitsBeforeReadiness(t *testing.T) {
	l := &Launcher{
		EnvCommand:    []string{"sh", "-c", "exit 3"},
		ServerCommand: []string{"true"},
		RunDir:        t.TempDir(),
		ReadyTimeout:  10 * time.Second,
	}

	start := time.Now()
	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before readiness")
	assert.Less(t, time.Since(start), 5*time.Second, "should fail fast, not wait out the timeout")
}

func TestRunReadinessTimeout(t *testing.T) {
	l := &Launcher{
		EnvCommand:    []string{"sleep", "60"},
		ServerCommand: []string{"true"},
		RunDir:        t.TempDir(),
		ReadyTimeout:  300 * time.Millisecond,
	}

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readiness")
}

func TestRunServerFailurePropagates(t *testing.T) {
	runDir := t.TempDir()

	l := &Launcher{
		EnvCommand:    []string{"sh", "-c", "touch " + filepath.Join(runDir, "env.ready") + " && sleep 60"},
		ServerCommand: []string{"sh", "-c", "exit 7"},
		RunDir:        runDir,
		ReadyTimeout:  5 * time.Second,
	}

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server process failed")
}

func TestRunStaleSentinelIgnored(t *testing.T) {
	runDir := t.TempDir()
	// Sentinel left behind by a previous run that was killed outright.
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "env.ready"), []byte("stale\n"), 0644))
	marker := filepath.Join(runDir, "server-ran")

	l := &Launcher{
		// This run's env process never becomes ready; it crashes instead.
		EnvCommand:    []string{"sh", "-c", "sleep 0.5; exit 3"},
		ServerCommand: []string{"sh", "-c", "touch " + marker},
		RunDir:        runDir,
		ReadyTimeout:  10 * time.Second,
	}

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before readiness")
	assert.NoFileExists(t, marker, "server must not start on a stale sentinel")
}
