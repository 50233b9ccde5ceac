// Package cves provides builtin CVE task specifications.
package cves

import (
	"github.com/stuxbench/stux/internal/tasks"
)

// CVE202532444 covers the vLLM Mooncake integration deserialization flaw.
//
// The agent receives a vulnerable vLLM checkout at /workspace/vllm; grading
// pulls the hidden pytest suite from the test branch and runs it against the
// patched tree.
var CVE202532444 = &tasks.Spec{
	ID:          "cve-2025-32444",
	CVE:         "CVE-2025-32444",
	Description: "vLLM Mooncake integration deserializes untrusted data over an unauthenticated ZMQ socket",

	RepoURL:       "https://github.com/stuxbench/vLLM-clone.git",
	DefaultBranch: "main",
	TestBranch:    "CVE-2025-32444-tests",
	TestFile:      "tests/distributed/test_cve_2025_32444.py",
	TestCommand: []string{
		"python", "-m", "pytest",
		"tests/distributed/test_cve_2025_32444.py",
		"-v", "--tb=short",
	},
	TestTimeoutSeconds: 60,

	WorkspaceDir: "/workspace/vllm",
	Image:        "stuxbench/vllm-cpu:latest",
}

func init() {
	tasks.RegisterSpec(CVE202532444)
}
