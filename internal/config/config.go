// Package config provides configuration management for the stux application.
//
// This package handles all configuration-related functionality including:
//   - Controller server configuration (host, port)
//   - Storage paths (config directory, data directory, run directory)
//   - Build-time and run-time environment variable overrides
//   - Build profiles and task configuration files
//
// The configuration is designed to be flexible and can be customized for
// different deployment scenarios (local development, CI, inside the task
// environment container).
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultServerHost is the default controller host address.
	// The controller listens on localhost by default for security.
	DefaultServerHost = "localhost"

	// DefaultServerPort is the default controller port.
	DefaultServerPort = 11681

	// DefaultConfigDirName is the default configuration directory name,
	// created in the user's home directory.
	DefaultConfigDirName = ".stux"

	// DefaultDataDirName is the data subdirectory under the config dir.
	DefaultDataDirName = "data"

	// DefaultRunDirName is the run-state subdirectory under the data dir.
	// Holds the resolved environment file and readiness sentinel written
	// by the env process.
	DefaultRunDirName = "run"

	// DefaultWorkspaceDir is the task workspace path inside the
	// environment container.
	DefaultWorkspaceDir = "/workspace"
)

// Config represents the complete application configuration.
type Config struct {
	// Server holds the controller HTTP server configuration.
	Server ServerConfig `json:"server"`

	// Storage holds directory locations for configuration and runtime data.
	Storage StorageConfig `json:"storage"`

	// Build holds build-time settings sourced from the environment.
	Build BuildEnv `json:"build"`

	// BinaryVersion is the stux binary version, set from main during
	// initialization.
	BinaryVersion string `json:"-"`
}

// ServerConfig represents the controller HTTP server configuration.
type ServerConfig struct {
	// Name uniquely identifies this controller instance. Used as a label
	// on environment containers so multiple controllers can share a
	// Docker host.
	Name string `json:"name"`

	// Host is the listen address ("localhost" restricts to local clients).
	Host string `json:"host"`

	// Port is the TCP port the controller listens on.
	Port int `json:"port"`
}

// StorageConfig represents storage and persistence locations.
type StorageConfig struct {
	// ConfigDir holds YAML configuration files (tasks.yaml,
	// build_profiles.yaml) and server.conf.
	ConfigDir string `json:"config_dir"`

	// DataDir holds runtime data (build contexts, run state).
	DataDir string `json:"data_dir"`
}

// BuildEnv carries the environment variables consumed at image build time.
//
// These map one-to-one onto the build arguments of the task image:
// package index overrides, dependency resolution strategy, compiler cache
// locations, and the credential used to fetch the private source repository.
type BuildEnv struct {
	// PythonVersion selects the interpreter baked into the image.
	PythonVersion string `json:"python_version"`

	// PipExtraIndexURL is an additional package index, forwarded to the
	// build as PIP_EXTRA_INDEX_URL.
	PipExtraIndexURL string `json:"pip_extra_index_url,omitempty"`

	// UVIndexStrategy controls dependency resolution across indexes
	// (e.g., "unsafe-best-match").
	UVIndexStrategy string `json:"uv_index_strategy,omitempty"`

	// CcacheDir and UVCacheDir are compiler/package cache locations
	// mounted into build stages.
	CcacheDir  string `json:"ccache_dir,omitempty"`
	UVCacheDir string `json:"uv_cache_dir,omitempty"`

	// RepoToken is the credential for fetching the private source
	// repository. Never logged.
	RepoToken string `json:"-"`
}

// GetRunDir returns the run-state directory path.
func (s *StorageConfig) GetRunDir() string {
	return filepath.Join(s.DataDir, DefaultRunDirName)
}

// GetBuildDir returns the directory used for generated build contexts.
func (s *StorageConfig) GetBuildDir() string {
	return filepath.Join(s.DataDir, "build")
}

// TasksConfigPath returns the path of the optional tasks.yaml file.
func (s *StorageConfig) TasksConfigPath() string {
	return filepath.Join(s.ConfigDir, "tasks.yaml")
}

// NewDefaultConfig creates a configuration with default values.
//
// Defaults place everything under ~/.stux and listen on localhost. The
// build environment is populated from the process environment so that CI
// and container builds can override it without flags.
func NewDefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp"
	}

	configDir := filepath.Join(homeDir, DefaultConfigDirName)
	dataDir := filepath.Join(configDir, DefaultDataDirName)

	return &Config{
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Storage: StorageConfig{
			ConfigDir: configDir,
			DataDir:   dataDir,
		},
		Build: buildEnvFromProcess(),
	}
}

// NewConfigWithCustomDirs creates a configuration with custom directories.
//
// Empty arguments fall back to the defaults; a custom config dir with no
// data dir places data under the config dir.
func NewConfigWithCustomDirs(configDir, dataDir string) *Config {
	cfg := NewDefaultConfig()
	if configDir != "" {
		cfg.Storage.ConfigDir = configDir
		if dataDir == "" {
			cfg.Storage.DataDir = filepath.Join(configDir, DefaultDataDirName)
		}
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	return cfg
}

// buildEnvFromProcess reads the build-time variables from the process
// environment, applying defaults where unset.
func buildEnvFromProcess() BuildEnv {
	env := BuildEnv{
		PythonVersion:    getenvDefault("PYTHON_VERSION", "3.12"),
		PipExtraIndexURL: os.Getenv("PIP_EXTRA_INDEX_URL"),
		UVIndexStrategy:  getenvDefault("UV_INDEX_STRATEGY", "unsafe-best-match"),
		CcacheDir:        getenvDefault("CCACHE_DIR", "/root/.cache/ccache"),
		UVCacheDir:       getenvDefault("UV_CACHE_DIR", "/root/.cache/uv"),
		RepoToken:        os.Getenv("GIT_REPO_TOKEN"),
	}
	return env
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnsureDirectories creates the configuration and data directories if they
// do not exist.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.ConfigDir,
		c.Storage.DataDir,
		c.Storage.GetRunDir(),
		c.Storage.GetBuildDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
