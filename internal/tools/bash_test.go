package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBashToolExecute(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	res, err := tool.Execute(context.Background(), "echo hi", 0, "")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.Equal(t, 0, res.ReturnCode)
	assert.False(t, res.TimedOut)
}

func TestBashToolNonZeroExit(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	res, err := tool.Execute(context.Background(), "exit 7", 0, "")
	require.NoError(t, err)
	assert.Equal(t, 7, res.ReturnCode)
}

func TestBashToolTimeout(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	res, err := tool.Execute(context.Background(), "sleep 10", 100*time.Millisecond, "")
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ReturnCode)
	assert.Contains(t, res.Stderr, "timed out")
}

func TestBashToolCwdOverride(t *testing.T) {
	tool := NewBashTool("/")
	dir := t.TempDir()

	res, err := tool.Execute(context.Background(), "pwd", 0, dir)
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)
}
