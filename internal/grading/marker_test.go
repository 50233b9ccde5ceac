package grading

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuxbench/stux/internal/tasks"
)

func markerTask(dir string) *tasks.Spec {
	return &tasks.Spec{
		ID:            "smoke",
		DefaultBranch: "main",
		WorkspaceDir:  dir,
		Marker: &tasks.MarkerSpec{
			File:  "pkg/__init__.py",
			Key:   "TestField",
			Value: ".test_field:test_value",
		},
	}
}

func writeMarkerFile(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "__init__.py"), []byte(content), 0o644))
}

func TestMarkerGraderExactValue(t *testing.T) {
	dir := t.TempDir()
	writeMarkerFile(t, dir, `MODULE_ATTRS = {
    "Existing": ".existing:value",
    "TestField": ".test_field:test_value",
}
`)

	score, metadata := (&MarkerGrader{Task: markerTask(dir)}).Compute(context.Background())
	assert.Equal(t, 1.0, score)
	assert.Equal(t, true, metadata["marker_found"])
}

func TestMarkerGraderWrongValue(t *testing.T) {
	dir := t.TempDir()
	writeMarkerFile(t, dir, `MODULE_ATTRS = {"TestField": ".wrong:value"}`)

	score, metadata := (&MarkerGrader{Task: markerTask(dir)}).Compute(context.Background())
	assert.Equal(t, 0.5, score)
	assert.Equal(t, ".wrong:value", metadata["marker_value"])
}

func TestMarkerGraderMissingKey(t *testing.T) {
	dir := t.TempDir()
	writeMarkerFile(t, dir, `MODULE_ATTRS = {"Other": ".other:value"}`)

	score, metadata := (&MarkerGrader{Task: markerTask(dir)}).Compute(context.Background())
	assert.Equal(t, 0.0, score)
	assert.Equal(t, false, metadata["marker_found"])
}

func TestMarkerGraderMissingFile(t *testing.T) {
	dir := t.TempDir()

	score, metadata := (&MarkerGrader{Task: markerTask(dir)}).Compute(context.Background())
	assert.Equal(t, 0.0, score)
	assert.Contains(t, metadata["error"], "file not found")
}

func TestFindMarkerValueSingleQuotes(t *testing.T) {
	value, found := findMarkerValue(`{'TestField': '.test_field:test_value'}`, "TestField")
	assert.True(t, found)
	assert.Equal(t, ".test_field:test_value", value)
}

func TestGradeTaskMarkerTask(t *testing.T) {
	dir := t.TempDir()
	writeMarkerFile(t, dir, `{"TestField": ".test_field:test_value"}`)

	grade, err := GradeTask(context.Background(), markerTask(dir), "", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, grade.Score())
}
