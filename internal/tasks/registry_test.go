package tasks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec(id string) *Spec {
	return &Spec{
		ID:            id,
		CVE:           "CVE-2025-0001",
		RepoURL:       "https://example.com/repo.git",
		DefaultBranch: "main",
		TestBranch:    "tests",
		TestFile:      "tests/test_fix.py",
		TestCommand:   []string{"python", "-m", "pytest", "tests/test_fix.py"},
		WorkspaceDir:  "/workspace/repo",
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validSpec("cve-a")))

	spec, err := r.Get("cve-a")
	require.NoError(t, err)
	assert.Equal(t, "cve-a", spec.ID)

	_, err = r.Get("missing")
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validSpec("cve-b")))
	require.NoError(t, r.Register(validSpec("cve-a")))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "cve-a", list[0].ID)
	assert.Equal(t, "cve-b", list[1].ID)
}

func TestRegistryOverride(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validSpec("cve-a")))

	override := validSpec("cve-a")
	override.TestBranch = "other-tests"
	require.NoError(t, r.Register(override))

	spec, err := r.Get("cve-a")
	require.NoError(t, err)
	assert.Equal(t, "other-tests", spec.TestBranch)
}

func TestSpecValidate(t *testing.T) {
	spec := validSpec("cve-a")
	require.NoError(t, spec.Validate())

	missing := validSpec("")
	assert.Error(t, missing.Validate())

	noWorkspace := validSpec("cve-a")
	noWorkspace.WorkspaceDir = ""
	assert.Error(t, noWorkspace.Validate())

	noTests := validSpec("cve-a")
	noTests.TestCommand = nil
	assert.Error(t, noTests.Validate())
}

func TestSpecValidateMarkerOnly(t *testing.T) {
	spec := &Spec{
		ID:            "smoke",
		DefaultBranch: "main",
		WorkspaceDir:  "/workspace/repo",
		Marker: &MarkerSpec{
			File:  "vllm/__init__.py",
			Key:   "TestField",
			Value: ".test_field:test_value",
		},
	}
	assert.NoError(t, spec.Validate())
}

func TestLoadAndRegisterTasks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yaml")
	yaml := `tasks:
  - id: cve-from-file
    cve: CVE-2025-9999
    repo_url: https://example.com/r.git
    default_branch: main
    test_branch: fix-tests
    test_file: tests/t.py
    test_command: ["pytest", "tests/t.py"]
    workspace_dir: /workspace/r
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	r := NewRegistry()
	require.NoError(t, LoadAndRegisterTasks(r, path))

	spec, err := r.Get("cve-from-file")
	require.NoError(t, err)
	assert.Equal(t, "fix-tests", spec.TestBranch)
	assert.Equal(t, []string{"pytest", "tests/t.py"}, spec.TestCommand)
}

func TestLoadAndRegisterTasksMissingFile(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, LoadAndRegisterTasks(r, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestLoadAndRegisterTasksBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tasks: [not-a-map"), 0o644))

	r := NewRegistry()
	assert.Error(t, LoadAndRegisterTasks(r, path))
}
