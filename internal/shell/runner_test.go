package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	r := NewRunner(t.TempDir())

	res, err := r.Run(context.Background(), Command{Shell: "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.False(t, res.TimedOut)
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	r := NewRunner(t.TempDir())

	res, err := r.Run(context.Background(), Command{Shell: "echo oops >&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner(t.TempDir())

	start := time.Now()
	res, err := r.Run(context.Background(), Command{
		Shell:   "sleep 5",
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunArgvForm(t *testing.T) {
	r := NewRunner(t.TempDir())

	res, err := r.Run(context.Background(), Command{Name: "echo", Args: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "a b\n", res.Stdout)
}

func TestRunMissingName(t *testing.T) {
	r := NewRunner(t.TempDir())

	_, err := r.Run(context.Background(), Command{})
	assert.Error(t, err)
}

func TestRunRespectsDirOverride(t *testing.T) {
	r := NewRunner("/")
	dir := t.TempDir()

	res, err := r.Run(context.Background(), Command{Shell: "pwd", Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)
}

func TestRunStdin(t *testing.T) {
	r := NewRunner(t.TempDir())

	res, err := r.Run(context.Background(), Command{Shell: "cat", Stdin: "piped"})
	require.NoError(t, err)
	assert.Equal(t, "piped", res.Stdout)
}
