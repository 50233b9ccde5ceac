package tasks

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stuxbench/stux/internal/logger"
)

// tasksFile is the on-disk structure of tasks.yaml.
//
// Example:
//
//	tasks:
//	  - id: cve-2025-32444
//	    cve: CVE-2025-32444
//	    repo_url: https://github.com/stuxbench/vLLM-clone.git
//	    default_branch: main
//	    test_branch: CVE-2025-32444-tests
//	    test_file: tests/distributed/test_cve_2025_32444.py
//	    test_command: ["python", "-m", "pytest", "tests/distributed/test_cve_2025_32444.py", "-v", "--tb=short"]
//	    workspace_dir: /workspace/vllm
type tasksFile struct {
	Tasks []*Spec `yaml:"tasks"`
}

// LoadAndRegisterTasks reads a tasks.yaml file and registers its tasks with
// the given registry.
//
// A missing file is not an error: builtin tasks remain available. A file
// that exists but fails to parse or validate is an error, since it means
// the operator's configuration is broken.
func LoadAndRegisterTasks(registry *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("No task configuration at %s, using builtin tasks only", path)
			return nil
		}
		return fmt.Errorf("failed to read task configuration: %w", err)
	}

	var file tasksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse task configuration %s: %w", path, err)
	}

	for _, spec := range file.Tasks {
		if err := registry.Register(spec); err != nil {
			return fmt.Errorf("task configuration %s: %w", path, err)
		}
		logger.Info("Registered task from configuration: %s", spec.ID)
	}

	return nil
}
