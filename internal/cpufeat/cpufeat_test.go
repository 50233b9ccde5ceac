package cpufeat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stuxbench/stux/internal/config"
)

const fullFlagsCPUInfo = `processor	: 0
vendor_id	: GenuineIntel
model name	: Intel(R) Xeon(R) Platinum 8488C
flags		: fpu vme de pse tsc msr avx2 avx512f avx512dq avx512cd avx512bw avx512vl avx512_vnni avx512_bf16 sse4_2
processor	: 1
flags		: fpu vme de pse tsc msr avx2 avx512f avx512_vnni avx512_bf16
`

const noAVX512CPUInfo = `processor	: 0
model name	: Intel(R) Core(TM) i7-7700K
flags		: fpu vme de pse tsc msr avx avx2 sse4_2
`

func TestParseCPUInfoFullFeatures(t *testing.T) {
	features := parseCPUInfo(strings.NewReader(fullFlagsCPUInfo))

	assert.True(t, features.AVX512F)
	assert.True(t, features.AVX512BF16)
	assert.True(t, features.AVX512VNNI)
}

func TestParseCPUInfoNoAVX512(t *testing.T) {
	features := parseCPUInfo(strings.NewReader(noAVX512CPUInfo))

	assert.False(t, features.AVX512F)
	assert.False(t, features.AVX512BF16)
	assert.False(t, features.AVX512VNNI)
}

func TestParseCPUInfoEmpty(t *testing.T) {
	features := parseCPUInfo(strings.NewReader(""))

	assert.Equal(t, Features{}, features)
}

func TestRestrictKeepsCapableHost(t *testing.T) {
	profile := &config.BuildProfile{
		Arch:             "amd64",
		BaseImage:        "ubuntu:22.04",
		EnableAVX512BF16: true,
		EnableAVX512VNNI: true,
	}

	adjusted := Restrict(profile, Features{AVX512F: true, AVX512BF16: true, AVX512VNNI: true})

	assert.False(t, adjusted.DisableAVX512)
	assert.True(t, adjusted.EnableAVX512BF16)
	assert.True(t, adjusted.EnableAVX512VNNI)
}

func TestRestrictDisablesAllWithoutAVX512F(t *testing.T) {
	profile := &config.BuildProfile{
		Arch:             "amd64",
		BaseImage:        "ubuntu:22.04",
		EnableAVX512BF16: true,
		EnableAVX512VNNI: true,
	}

	adjusted := Restrict(profile, Features{})

	assert.True(t, adjusted.DisableAVX512)
	assert.False(t, adjusted.EnableAVX512BF16)
	assert.False(t, adjusted.EnableAVX512VNNI)
	// Original profile is untouched.
	assert.False(t, profile.DisableAVX512)
}

func TestRestrictDropsMissingSubfeatures(t *testing.T) {
	profile := &config.BuildProfile{
		Arch:             "amd64",
		BaseImage:        "ubuntu:22.04",
		EnableAVX512BF16: true,
		EnableAVX512VNNI: true,
	}

	adjusted := Restrict(profile, Features{AVX512F: true, AVX512VNNI: true})

	assert.False(t, adjusted.DisableAVX512)
	assert.False(t, adjusted.EnableAVX512BF16)
	assert.True(t, adjusted.EnableAVX512VNNI)
}

func TestRestrictLeavesDisabledProfileAlone(t *testing.T) {
	profile := &config.BuildProfile{
		Arch:          "arm64",
		BaseImage:     "ubuntu:22.04",
		DisableAVX512: true,
	}

	adjusted := Restrict(profile, Features{AVX512F: true})

	assert.True(t, adjusted.DisableAVX512)
}
