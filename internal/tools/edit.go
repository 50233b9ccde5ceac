package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stuxbench/stux/internal/logger"
)

const (
	// maxResponseLen caps the content returned by view so that very large
	// files do not blow up the tool response.
	maxResponseLen = 16000

	truncatedMessage = "\n<response clipped>\nNOTE: File was too large and has been truncated. Use view_range to see specific sections."
)

// EditCommand selects the operation performed by the edit tool.
type EditCommand string

const (
	EditView       EditCommand = "view"
	EditCreate     EditCommand = "create"
	EditStrReplace EditCommand = "str_replace"
)

// EditResult is the structured outcome of an edit tool invocation.
type EditResult struct {
	Content     string `json:"content,omitempty"`
	Lines       int    `json:"lines,omitempty"`
	Path        string `json:"path"`
	Truncated   bool   `json:"truncated,omitempty"`
	Message     string `json:"message,omitempty"`
	Occurrences int    `json:"occurrences,omitempty"`
}

// EditTool views and edits files under a base directory.
//
// Relative paths are resolved against the base directory; absolute paths are
// used as given, matching the original tool contract.
type EditTool struct {
	baseDir string
}

// NewEditTool creates an edit tool rooted at the given base directory.
func NewEditTool(baseDir string) *EditTool {
	return &EditTool{baseDir: baseDir}
}

// Execute performs an edit command.
//
// Parameters:
//   - command: the operation (view, create, str_replace)
//   - path: target file, absolute or relative to the base directory
//   - oldStr/newStr: replacement pair for str_replace
//   - fileText: content for create
//   - viewRange: optional [start, end] line range for view (1-based)
func (t *EditTool) Execute(command EditCommand, path string, oldStr, newStr, fileText string, viewRange []int) (*EditResult, error) {
	filePath := path
	if !filepath.IsAbs(path) {
		filePath = filepath.Join(t.baseDir, path)
	}

	switch command {
	case EditView:
		return t.view(filePath, viewRange)
	case EditCreate:
		return t.create(filePath, fileText)
	case EditStrReplace:
		return t.strReplace(filePath, oldStr, newStr)
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

// view returns file contents, optionally limited to a line range and
// truncated when too large.
func (t *EditTool) view(filePath string, viewRange []int) (*EditResult, error) {
	if len(viewRange) != 0 && len(viewRange) != 2 {
		return nil, fmt.Errorf("view_range must be [start, end], got %d element(s)", len(viewRange))
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	content := string(data)
	lines := strings.Split(content, "\n")

	if len(viewRange) == 2 {
		start := viewRange[0] - 1
		if start < 0 {
			start = 0
		}
		end := viewRange[1]
		if end > len(lines) {
			end = len(lines)
		}
		if start > end {
			start = end
		}
		lines = lines[start:end]
		content = strings.Join(lines, "\n")
	}

	truncated := false
	if len(content) > maxResponseLen {
		content = content[:maxResponseLen] + truncatedMessage
		truncated = true
	}

	return &EditResult{
		Content:   content,
		Lines:     len(lines),
		Path:      filePath,
		Truncated: truncated,
	}, nil
}

// create writes a new file, refusing to overwrite an existing one.
func (t *EditTool) create(filePath, content string) (*EditResult, error) {
	if _, err := os.Stat(filePath); err == nil {
		return nil, fmt.Errorf("file already exists: %s", filePath)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	logger.Debug("Created file: %s", filePath)

	return &EditResult{
		Message: fmt.Sprintf("File created: %s", filePath),
		Path:    filePath,
	}, nil
}

// strReplace replaces every occurrence of oldStr with newStr.
func (t *EditTool) strReplace(filePath, oldStr, newStr string) (*EditResult, error) {
	if oldStr == "" {
		return nil, fmt.Errorf("old_str is required for str_replace")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	content := string(data)
	if !strings.Contains(content, oldStr) {
		snippet := oldStr
		if len(snippet) > 50 {
			snippet = snippet[:50]
		}
		return nil, fmt.Errorf("string not found in file: %s...", snippet)
	}

	occurrences := strings.Count(content, oldStr)
	newContent := strings.ReplaceAll(content, oldStr, newStr)

	if err := os.WriteFile(filePath, []byte(newContent), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &EditResult{
		Message:     fmt.Sprintf("Replaced %d occurrence(s)", occurrences),
		Path:        filePath,
		Occurrences: occurrences,
	}, nil
}
