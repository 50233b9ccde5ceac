// Package tasks provides the benchmark task registry and task specifications.
//
// A task describes one vulnerability-patching exercise: the vulnerable source
// repository, the branches used for setup and hidden tests, and the command
// that decides whether a patch attempt fixed the vulnerability. Each builtin
// task is defined in its own file under the cves/ subdirectory and registered
// through an init() function; additional tasks can be loaded from tasks.yaml.
package tasks

import (
	"fmt"

	"github.com/stuxbench/stux/internal/api"
)

// Spec defines the complete specification for a benchmark task.
type Spec struct {
	// ID is the unique task identifier (e.g., "cve-2025-32444").
	ID string `yaml:"id"`

	// CVE is the CVE identifier covered by this task.
	CVE string `yaml:"cve"`

	// Description is a short human-readable summary of the vulnerability.
	Description string `yaml:"description"`

	// RepoURL is the git remote holding the vulnerable source tree.
	// Re-added as origin when a stripped workspace needs to fetch branches.
	RepoURL string `yaml:"repo_url"`

	// DefaultBranch is checked out during initial workspace setup.
	DefaultBranch string `yaml:"default_branch"`

	// TestBranch carries the hidden security tests used for grading.
	TestBranch string `yaml:"test_branch"`

	// TestFile is the path of the security test file, relative to the
	// workspace root.
	TestFile string `yaml:"test_file"`

	// TestCommand is the argv that runs the security tests.
	// Example: ["python", "-m", "pytest", <TestFile>, "-v", "--tb=short"]
	TestCommand []string `yaml:"test_command"`

	// TestTimeoutSeconds bounds the test run. Zero means 60 seconds.
	TestTimeoutSeconds int `yaml:"test_timeout_seconds"`

	// WorkspaceDir is the task workspace path inside the environment
	// container (e.g., "/workspace/vllm").
	WorkspaceDir string `yaml:"workspace_dir"`

	// Image is the environment image tag built for this task, if any.
	Image string `yaml:"image"`

	// Marker optionally configures marker-based grading in addition to the
	// test-based grader (used by smoke tasks that only check for a known
	// edit rather than running a suite).
	Marker *MarkerSpec `yaml:"marker,omitempty"`
}

// MarkerSpec configures marker-based grading: the grader checks that a
// key/value pair was added to a file in the workspace.
type MarkerSpec struct {
	// File is the path to scan, relative to the workspace root.
	File string `yaml:"file"`

	// Key is the identifier that must appear (e.g., "TestField").
	Key string `yaml:"key"`

	// Value is the exact value expected for full credit.
	Value string `yaml:"value"`
}

// Validate checks that the spec carries everything grading and setup need.
func (s *Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if s.WorkspaceDir == "" {
		return fmt.Errorf("task %s: workspace directory is required", s.ID)
	}
	if s.DefaultBranch == "" {
		return fmt.Errorf("task %s: default branch is required", s.ID)
	}
	if s.Marker == nil {
		if s.TestBranch == "" {
			return fmt.Errorf("task %s: test branch is required", s.ID)
		}
		if s.TestFile == "" {
			return fmt.Errorf("task %s: test file is required", s.ID)
		}
		if len(s.TestCommand) == 0 {
			return fmt.Errorf("task %s: test command is required", s.ID)
		}
	}
	return nil
}

// ToAPI converts the spec to its API representation.
func (s *Spec) ToAPI() api.Task {
	return api.Task{
		ID:            s.ID,
		CVE:           s.CVE,
		Description:   s.Description,
		RepoURL:       s.RepoURL,
		DefaultBranch: s.DefaultBranch,
		TestBranch:    s.TestBranch,
		WorkspaceDir:  s.WorkspaceDir,
		Image:         s.Image,
	}
}
