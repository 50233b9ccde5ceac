package imagebuild

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuxbench/stux/internal/config"
)

func amd64Profile() *config.BuildProfile {
	profiles := config.GetDefaultBuildProfiles()
	return profiles["amd64"]
}

func testBuildEnv() *config.BuildEnv {
	return &config.BuildEnv{
		PythonVersion:    "3.12",
		PipExtraIndexURL: "https://download.pytorch.org/whl/cpu",
		UVIndexStrategy:  "unsafe-best-match",
	}
}

func TestRenderDockerfileAMD64(t *testing.T) {
	out, err := RenderDockerfile(amd64Profile(), testBuildEnv(), "https://github.com/stuxbench/vLLM-clone.git", "main")
	require.NoError(t, err)

	assert.Contains(t, out, "FROM ubuntu:22.04 AS base")
	assert.Contains(t, out, "FROM base AS engine-build")
	assert.Contains(t, out, "FROM base AS final")
	assert.Contains(t, out, "ARG PYTHON_VERSION=3.12")
	assert.Contains(t, out, "VLLM_CPU_DISABLE_AVX512=0")
	assert.Contains(t, out, "ARG VLLM_CPU_AVX512BF16=1")
	assert.Contains(t, out, "ARG VLLM_CPU_AVX512VNNI=1")
	assert.Contains(t, out, "libtcmalloc_minimal.so.4")
	assert.Contains(t, out, "libiomp5.so")
	assert.Contains(t, out, `ENTRYPOINT ["stux", "launch"`)
}

func TestRenderDockerfileARM64(t *testing.T) {
	profiles := config.GetDefaultBuildProfiles()
	out, err := RenderDockerfile(profiles["arm64"], testBuildEnv(), "https://github.com/stuxbench/vLLM-clone.git", "main")
	require.NoError(t, err)

	assert.Contains(t, out, "ARG VLLM_CPU_DISABLE_AVX512=1")
	assert.Contains(t, out, "ARG VLLM_CPU_AVX512BF16=0")
	assert.Contains(t, out, "aarch64-linux-gnu")
	assert.NotContains(t, out, "libiomp5")
}

func TestRenderDockerfileTokenNotInlined(t *testing.T) {
	env := testBuildEnv()
	env.RepoToken = "ghp_secret_value"

	out, err := RenderDockerfile(amd64Profile(), env, "https://github.com/stuxbench/vLLM-clone.git", "main")
	require.NoError(t, err)

	// Token must arrive as a build arg, never rendered into the file.
	assert.NotContains(t, out, "ghp_secret_value")
	assert.Contains(t, out, "ARG GIT_REPO_TOKEN")
}

func TestRenderDockerfileValidation(t *testing.T) {
	_, err := RenderDockerfile(amd64Profile(), testBuildEnv(), "", "main")
	assert.Error(t, err)

	_, err = RenderDockerfile(&config.BuildProfile{Arch: "amd64"}, testBuildEnv(), "https://example.com/r.git", "main")
	assert.Error(t, err)
}

func TestRenderDockerfileDefaultBranch(t *testing.T) {
	out, err := RenderDockerfile(amd64Profile(), testBuildEnv(), "https://github.com/stuxbench/vLLM-clone.git", "")
	require.NoError(t, err)
	assert.Contains(t, out, "ARG ENGINE_BRANCH=main")
}

func TestBuildArgsIncludeFeatureFlags(t *testing.T) {
	opts := &BuildOptions{
		Profile: amd64Profile(),
		Env:     testBuildEnv(),
	}
	args := buildArgs(opts)
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "PYTHON_VERSION=3.12")
	assert.Contains(t, joined, "VLLM_CPU_DISABLE_AVX512=0")
	assert.Contains(t, joined, "VLLM_CPU_AVX512BF16=1")
	assert.NotContains(t, joined, "GIT_REPO_TOKEN", "no token arg without a token")
}

func TestBuildArgsIncludeTokenWhenSet(t *testing.T) {
	env := testBuildEnv()
	env.RepoToken = "tok"
	args := buildArgs(&BuildOptions{Profile: amd64Profile(), Env: env})

	assert.Contains(t, args, "GIT_REPO_TOKEN=tok")
}
