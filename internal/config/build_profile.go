package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/stuxbench/stux/internal/logger"
)

const (
	// BuildProfilesFileName is the name of the build profiles configuration file.
	BuildProfilesFileName = "build_profiles.yaml"
)

// BuildProfile describes how the task environment image is built for one
// CPU architecture: the base image, the interpreter version, and the
// instruction-set feature flags passed to the engine's CPU build.
type BuildProfile struct {
	// Arch is the target architecture ("amd64" or "arm64").
	Arch string `yaml:"arch"`

	// BaseImage is the OS base layer the build extends.
	BaseImage string `yaml:"base_image"`

	// PythonVersion selects the interpreter installed by uv.
	PythonVersion string `yaml:"python_version"`

	// DisableAVX512 turns off all AVX-512 usage in the compiled engine.
	DisableAVX512 bool `yaml:"disable_avx512"`

	// EnableAVX512BF16 enables bfloat16 AVX-512 kernels. Ignored when
	// DisableAVX512 is set.
	EnableAVX512BF16 bool `yaml:"enable_avx512bf16"`

	// EnableAVX512VNNI enables VNNI AVX-512 kernels. Ignored when
	// DisableAVX512 is set.
	EnableAVX512VNNI bool `yaml:"enable_avx512vnni"`

	// LDPreload lists the shared libraries preloaded at runtime
	// (allocator and OpenMP runtime, architecture dependent).
	LDPreload []string `yaml:"ld_preload"`

	// CompilerLauncher wraps compiler invocations ("ccache" by default).
	CompilerLauncher string `yaml:"compiler_launcher"`
}

// Validate checks the profile for the fields the Dockerfile renderer needs.
func (p *BuildProfile) Validate() error {
	if p.Arch == "" {
		return fmt.Errorf("build profile: arch is required")
	}
	if p.BaseImage == "" {
		return fmt.Errorf("build profile %s: base image is required", p.Arch)
	}
	if p.PythonVersion == "" {
		return fmt.Errorf("build profile %s: python version is required", p.Arch)
	}
	return nil
}

// BuildProfilesConfig maps architecture names to their build profiles.
type BuildProfilesConfig map[string]*BuildProfile

// GetDefaultBuildProfiles returns the default per-architecture profiles.
//
// amd64 keeps the full AVX-512 feature set (BF16 and VNNI kernels enabled)
// and preloads tcmalloc plus the Intel OpenMP runtime; arm64 has no AVX-512
// at all and preloads only tcmalloc.
func GetDefaultBuildProfiles() BuildProfilesConfig {
	return BuildProfilesConfig{
		"amd64": {
			Arch:             "amd64",
			BaseImage:        "ubuntu:22.04",
			PythonVersion:    "3.12",
			DisableAVX512:    false,
			EnableAVX512BF16: true,
			EnableAVX512VNNI: true,
			LDPreload: []string{
				"/usr/lib/x86_64-linux-gnu/libtcmalloc_minimal.so.4",
				"/usr/local/lib/libiomp5.so",
			},
			CompilerLauncher: "ccache",
		},
		"arm64": {
			Arch:          "arm64",
			BaseImage:     "ubuntu:22.04",
			PythonVersion: "3.12",
			DisableAVX512: true,
			LDPreload: []string{
				"/usr/lib/aarch64-linux-gnu/libtcmalloc_minimal.so.4",
			},
			CompilerLauncher: "ccache",
		},
	}
}

// GetOrCreateBuildProfiles loads build_profiles.yaml from the config
// directory, writing the defaults to disk first when the file is missing.
//
// Writing the defaults gives operators a file to edit rather than
// undocumented built-in behavior.
func GetOrCreateBuildProfiles(configDir string) (BuildProfilesConfig, error) {
	path := filepath.Join(configDir, BuildProfilesFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		profiles := GetDefaultBuildProfiles()
		if err := writeBuildProfiles(path, profiles); err != nil {
			// Non-fatal: fall back to in-memory defaults.
			logger.Warn("Failed to write default build profiles: %v", err)
		} else {
			logger.Info("Wrote default build profiles to %s", path)
		}
		return profiles, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read build profiles: %w", err)
	}

	var profiles BuildProfilesConfig
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse build profiles %s: %w", path, err)
	}

	for arch, profile := range profiles {
		if profile.Arch == "" {
			profile.Arch = arch
		}
		if err := profile.Validate(); err != nil {
			return nil, fmt.Errorf("build profiles %s: %w", path, err)
		}
	}

	return profiles, nil
}

// Get returns the profile for the given architecture.
func (c BuildProfilesConfig) Get(arch string) (*BuildProfile, error) {
	profile, ok := c[arch]
	if !ok {
		arches := make([]string, 0, len(c))
		for a := range c {
			arches = append(arches, a)
		}
		return nil, fmt.Errorf("no build profile for architecture %s (supported: %v)", arch, arches)
	}
	return profile, nil
}

func writeBuildProfiles(path string, profiles BuildProfilesConfig) error {
	data, err := yaml.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal build profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write build profiles: %w", err)
	}
	return nil
}
