// Package imagebuild produces the benchmark container image: a CPU-only
// inference engine built from source plus the controller binary, laid out
// as a multi-stage Dockerfile rendered from a build profile.
package imagebuild

import (
	"fmt"
	"strings"

	"github.com/stuxbench/stux/internal/config"
)

// boolArg renders a build flag the way the engine's CMake toolchain
// expects it.
func boolArg(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// RenderDockerfile produces the Dockerfile for the given build profile and
// environment. The repository token is wired as a build argument and never
// appears in the rendered text itself.
func RenderDockerfile(profile *config.BuildProfile, env *config.BuildEnv, repoURL, branch string) (string, error) {
	if err := profile.Validate(); err != nil {
		return "", fmt.Errorf("invalid build profile: %w", err)
	}
	if repoURL == "" {
		return "", fmt.Errorf("repository URL cannot be empty")
	}
	if branch == "" {
		branch = "main"
	}

	var b strings.Builder

	// --- base stage: toolchain, uv, interpreter ---
	fmt.Fprintf(&b, "FROM %s AS base\n\n", profile.BaseImage)
	fmt.Fprintf(&b, "ARG PYTHON_VERSION=%s\n", env.PythonVersion)
	fmt.Fprintf(&b, "ARG PIP_EXTRA_INDEX_URL=%q\n", env.PipExtraIndexURL)
	fmt.Fprintf(&b, "ARG UV_INDEX_STRATEGY=%s\n\n", env.UVIndexStrategy)
	b.WriteString(`ENV DEBIAN_FRONTEND=noninteractive

RUN apt-get update -y \
    && apt-get install -y --no-install-recommends \
        ccache git curl wget ca-certificates \
        gcc-12 g++-12 libtcmalloc-minimal4 libnuma-dev \
        libdnnl-dev ffmpeg libsm6 libxext6 libgl1 jq lsof procps \
    && update-alternatives --install /usr/bin/gcc gcc /usr/bin/gcc-12 10 \
    && update-alternatives --install /usr/bin/g++ g++ /usr/bin/g++-12 10

RUN curl -LsSf https://astral.sh/uv/install.sh | sh
ENV PATH="/root/.local/bin:$PATH"
ENV VIRTUAL_ENV=/opt/venv
RUN uv venv --python ${PYTHON_VERSION} ${VIRTUAL_ENV}
ENV PATH="${VIRTUAL_ENV}/bin:$PATH"
ENV UV_HTTP_TIMEOUT=500
`)
	fmt.Fprintf(&b, "ENV LD_PRELOAD=%q\n\n", strings.Join(preloadPaths(profile), ":"))

	// --- build stage: clone and compile the CPU wheel ---
	b.WriteString("FROM base AS engine-build\n\n")
	b.WriteString("ARG GIT_REPO_TOKEN\n")
	fmt.Fprintf(&b, "ARG ENGINE_REPO=%s\n", repoURL)
	fmt.Fprintf(&b, "ARG ENGINE_BRANCH=%s\n", branch)
	fmt.Fprintf(&b, "ARG VLLM_CPU_DISABLE_AVX512=%s\n", boolArg(profile.DisableAVX512))
	fmt.Fprintf(&b, "ARG VLLM_CPU_AVX512BF16=%s\n", boolArg(profile.EnableAVX512BF16))
	fmt.Fprintf(&b, "ARG VLLM_CPU_AVX512VNNI=%s\n\n", boolArg(profile.EnableAVX512VNNI))
	b.WriteString(`WORKDIR /workspace
RUN if [ -n "$GIT_REPO_TOKEN" ]; then \
        git clone --branch ${ENGINE_BRANCH} "https://${GIT_REPO_TOKEN}@${ENGINE_REPO#https://}" vllm; \
    else \
        git clone --branch ${ENGINE_BRANCH} ${ENGINE_REPO} vllm; \
    fi

WORKDIR /workspace/vllm
RUN uv pip install --upgrade pip \
    && uv pip install -r requirements/cpu-build.txt --extra-index-url ${PIP_EXTRA_INDEX_URL} \
    && uv pip install -r requirements/cpu.txt --extra-index-url ${PIP_EXTRA_INDEX_URL}

ENV CCACHE_DIR=/root/.cache/ccache
ENV CMAKE_CXX_COMPILER_LAUNCHER=` + profile.CompilerLauncher + `
RUN --mount=type=cache,target=/root/.cache/ccache \
    --mount=type=cache,target=/root/.cache/uv \
    VLLM_TARGET_DEVICE=cpu \
    VLLM_CPU_DISABLE_AVX512=${VLLM_CPU_DISABLE_AVX512} \
    VLLM_CPU_AVX512BF16=${VLLM_CPU_AVX512BF16} \
    VLLM_CPU_AVX512VNNI=${VLLM_CPU_AVX512VNNI} \
    python setup.py bdist_wheel

`)

	// --- final stage: wheel, sources for patching, controller ---
	b.WriteString(`FROM base AS final

COPY --from=engine-build /workspace/vllm /workspace/vllm
WORKDIR /workspace/vllm
RUN uv pip install dist/*.whl --extra-index-url ${PIP_EXTRA_INDEX_URL} \
    && uv pip install pytest pytest-asyncio

COPY stux /usr/local/bin/stux

ENV VLLM_TARGET_DEVICE=cpu
ENTRYPOINT ["stux", "launch", "--workspace", "/workspace/vllm"]
`)

	return b.String(), nil
}

// preloadPaths maps library short names from the profile to the paths the
// base image installs them at.
func preloadPaths(profile *config.BuildProfile) []string {
	libDir := "/usr/lib/x86_64-linux-gnu"
	if profile.Arch == "arm64" {
		libDir = "/usr/lib/aarch64-linux-gnu"
	}

	paths := make([]string, 0, len(profile.LDPreload))
	for _, lib := range profile.LDPreload {
		switch lib {
		case "tcmalloc":
			paths = append(paths, libDir+"/libtcmalloc_minimal.so.4")
		case "libiomp5":
			paths = append(paths, "/opt/venv/lib/libiomp5.so")
		default:
			paths = append(paths, lib)
		}
	}
	return paths
}
