// Package cpufeat detects host CPU instruction-set features.
//
// The image builder uses the detected feature set to trim a build profile
// down to what the build host actually supports: an amd64 machine without
// AVX-512 gets the AVX-512 kernels disabled instead of producing a binary
// that dies with SIGILL at runtime.
package cpufeat

import (
	"bufio"
	"os"
	"runtime"
	"strings"

	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/logger"
)

// cpuinfoPath is the kernel's CPU description. Overridable for tests.
var cpuinfoPath = "/proc/cpuinfo"

// Features is the set of instruction-set extensions relevant to the
// engine's CPU build.
type Features struct {
	AVX512F    bool
	AVX512BF16 bool
	AVX512VNNI bool
}

// Detect reads the host CPU features.
//
// On non-Linux hosts or when /proc/cpuinfo is unreadable, an empty feature
// set is returned: the builder then falls back to the conservative profile.
func Detect() Features {
	if runtime.GOOS != "linux" {
		return Features{}
	}

	f, err := os.Open(cpuinfoPath)
	if err != nil {
		logger.Debug("Cannot read %s: %v", cpuinfoPath, err)
		return Features{}
	}
	defer f.Close()

	return parseCPUInfo(f)
}

// parseCPUInfo extracts the feature flags from cpuinfo-formatted text.
func parseCPUInfo(r interface{ Read([]byte) (int, error) }) Features {
	var features Features

	scanner := bufio.NewScanner(r)
	// Flag lines on big machines exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "flags") && !strings.HasPrefix(line, "Features") {
			continue
		}
		_, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		for _, flag := range strings.Fields(value) {
			switch flag {
			case "avx512f":
				features.AVX512F = true
			case "avx512_bf16":
				features.AVX512BF16 = true
			case "avx512_vnni":
				features.AVX512VNNI = true
			}
		}
		// One flags line is enough; all cores report the same set.
		break
	}

	return features
}

// Restrict lowers a build profile to the host's capabilities and returns
// the adjusted copy. A profile that already disables AVX-512 is returned
// unchanged.
func Restrict(profile *config.BuildProfile, features Features) *config.BuildProfile {
	adjusted := *profile

	if adjusted.DisableAVX512 {
		return &adjusted
	}

	if !features.AVX512F {
		logger.Info("Host CPU lacks AVX-512, disabling AVX-512 kernels for build")
		adjusted.DisableAVX512 = true
		adjusted.EnableAVX512BF16 = false
		adjusted.EnableAVX512VNNI = false
		return &adjusted
	}

	if adjusted.EnableAVX512BF16 && !features.AVX512BF16 {
		logger.Info("Host CPU lacks AVX512BF16, disabling bfloat16 kernels for build")
		adjusted.EnableAVX512BF16 = false
	}
	if adjusted.EnableAVX512VNNI && !features.AVX512VNNI {
		logger.Info("Host CPU lacks AVX512VNNI, disabling VNNI kernels for build")
		adjusted.EnableAVX512VNNI = false
	}

	return &adjusted
}
