package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuxbench/stux/internal/tasks"
)

func testSpec(workspaceDir string) *tasks.Spec {
	return &tasks.Spec{
		ID:            "cve-2099-0001",
		Description:   "test task",
		RepoURL:       "https://example.com/repo.git",
		DefaultBranch: "main",
		TestBranch:    "tests",
		TestFile:      "tests/test_x.py",
		TestCommand:   []string{"python", "-m", "pytest"},
		WorkspaceDir:  workspaceDir,
	}
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestNewRequiresTask(t *testing.T) {
	_, err := New(nil, "")
	assert.Error(t, err)
}

func TestNewUsesTaskWorkspaceByDefault(t *testing.T) {
	dir := t.TempDir()
	s, err := New(testSpec(dir), "")
	require.NoError(t, err)
	assert.Equal(t, dir, s.workspace.Dir)
}

func TestHandleBash(t *testing.T) {
	s, err := New(testSpec(t.TempDir()), "")
	require.NoError(t, err)

	res, err := s.handleBash(context.Background(), callRequest("bash", map[string]interface{}{
		"command": "echo hello",
	}))
	require.NoError(t, err)

	var out struct {
		Stdout     string `json:"stdout"`
		ReturnCode int    `json:"returncode"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "hello\n", out.Stdout)
	assert.Equal(t, 0, out.ReturnCode)
}

func TestHandleBashMissingCommand(t *testing.T) {
	s, err := New(testSpec(t.TempDir()), "")
	require.NoError(t, err)

	res, err := s.handleBash(context.Background(), callRequest("bash", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleEditCreateAndView(t *testing.T) {
	dir := t.TempDir()
	s, err := New(testSpec(dir), "")
	require.NoError(t, err)

	res, err := s.handleEdit(context.Background(), callRequest("edit", map[string]interface{}{
		"command":   "create",
		"path":      "notes.txt",
		"file_text": "line one\nline two\n",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = s.handleEdit(context.Background(), callRequest("edit", map[string]interface{}{
		"command": "view",
		"path":    filepath.Join(dir, "notes.txt"),
	}))
	require.NoError(t, err)

	var out struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Contains(t, out.Content, "line one")
}

func TestHandleEditBadViewRange(t *testing.T) {
	s, err := New(testSpec(t.TempDir()), "")
	require.NoError(t, err)

	res, err := s.handleEdit(context.Background(), callRequest("edit", map[string]interface{}{
		"command":    "view",
		"path":       "x.txt",
		"view_range": "not-a-range",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestParseViewRange(t *testing.T) {
	r, err := parseViewRange("10, 20")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, r)

	_, err = parseViewRange("10")
	assert.Error(t, err)

	_, err = parseViewRange("a,b")
	assert.Error(t, err)
}
