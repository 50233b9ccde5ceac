package grading

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/stuxbench/stux/internal/tasks"
)

// MarkerGrader checks that a required key/value marker was added to a file
// in the workspace. It is used by smoke tasks that verify the grading
// pipeline end to end without running a test suite.
//
// Scoring:
//   - 1.0 when the key is present with the exact expected value
//   - 0.5 when the key is present with a different value
//   - 0.0 when the key is absent (or the file is missing/unreadable)
type MarkerGrader struct {
	Task *tasks.Spec

	// WorkspaceDir overrides the task workspace when non-empty.
	WorkspaceDir string
}

// Name implements Grader.
func (g *MarkerGrader) Name() string { return "MarkerGrader" }

// Compute implements Grader.
func (g *MarkerGrader) Compute(ctx context.Context) (float64, map[string]interface{}) {
	metadata := map[string]interface{}{}

	marker := g.Task.Marker
	if marker == nil {
		metadata["error"] = fmt.Sprintf("task %s has no marker configuration", g.Task.ID)
		return 0.0, metadata
	}

	dir := g.WorkspaceDir
	if dir == "" {
		dir = g.Task.WorkspaceDir
	}
	path := filepath.Join(dir, marker.File)

	data, err := os.ReadFile(path)
	if err != nil {
		metadata["error"] = fmt.Sprintf("file not found: %s", path)
		return 0.0, metadata
	}

	value, found := findMarkerValue(string(data), marker.Key)
	if !found {
		metadata["marker_found"] = false
		metadata["result"] = fmt.Sprintf("FAIL: %s not found in %s", marker.Key, marker.File)
		return 0.0, metadata
	}

	metadata["marker_found"] = true
	metadata["marker_value"] = value
	if value == marker.Value {
		metadata["result"] = fmt.Sprintf("SUCCESS: %s added with correct value", marker.Key)
		return 1.0, metadata
	}
	metadata["result"] = fmt.Sprintf("PARTIAL: %s exists but wrong value: %s", marker.Key, value)
	return 0.5, metadata
}

// findMarkerValue scans source text for a quoted key/value entry of the form
//
//	"Key": "value"   or   'Key': 'value'
//
// and returns the value. This covers dict-style registries without parsing
// the host language.
func findMarkerValue(content, key string) (string, bool) {
	pattern := fmt.Sprintf(`["']%s["']\s*:\s*["']([^"']*)["']`, regexp.QuoteMeta(key))
	re := regexp.MustCompile(pattern)
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}
