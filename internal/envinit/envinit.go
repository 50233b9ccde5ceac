// Package envinit implements the environment-init process that runs as the
// first of the two in-container processes. It resolves the runtime
// environment from configuration, records it under the run directory and
// signals readiness through a sentinel file, then sleeps until terminated.
//
// The controller process waits on the sentinel (see WaitReady) instead of
// sleeping a fixed delay, so a slow or failed init is detected rather than
// raced past.
package envinit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/logger"
)

const (
	// envFileName holds the resolved environment as JSON.
	envFileName = "env.json"
	// readyFileName is the sentinel whose presence signals a completed init.
	readyFileName = "env.ready"
)

// Environment is the resolved runtime environment written to env.json.
type Environment struct {
	Arch          string            `json:"arch"`
	WorkspaceDir  string            `json:"workspace_dir"`
	PythonVersion string            `json:"python_version"`
	LDPreload     []string          `json:"ld_preload,omitempty"`
	CacheDirs     map[string]string `json:"cache_dirs,omitempty"`
	PreparedAt    time.Time         `json:"prepared_at"`
}

// Init resolves the environment for workspaceDir, verifies the workspace
// exists, and writes env.json plus the env.ready sentinel under runDir.
func Init(cfg *config.Config, runDir, workspaceDir string) (*Environment, error) {
	info, err := os.Stat(workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("workspace %s not available: %w", workspaceDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", workspaceDir)
	}

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	// A sentinel left behind by a killed previous run must not signal
	// readiness for this init.
	if err := ClearReady(runDir); err != nil {
		return nil, fmt.Errorf("failed to clear stale readiness sentinel: %w", err)
	}

	env := resolve(cfg, workspaceDir)

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize environment: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, envFileName), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", envFileName, err)
	}

	// The sentinel goes last so a reader never observes ready without env.json.
	if err := os.WriteFile(filepath.Join(runDir, readyFileName), []byte(env.PreparedAt.Format(time.RFC3339)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write readiness sentinel: %w", err)
	}

	logger.Info("Environment prepared for workspace %s (arch: %s)", workspaceDir, env.Arch)
	return env, nil
}

// resolve computes the environment from configuration and the host
// architecture. Preload libraries follow the build profile defaults:
// tcmalloc everywhere, libiomp5 only on amd64.
func resolve(cfg *config.Config, workspaceDir string) *Environment {
	env := &Environment{
		Arch:          runtime.GOARCH,
		WorkspaceDir:  workspaceDir,
		PythonVersion: cfg.Build.PythonVersion,
		PreparedAt:    time.Now().UTC(),
		CacheDirs:     map[string]string{},
	}

	profiles := config.GetDefaultBuildProfiles()
	if profile, ok := profiles[runtime.GOARCH]; ok {
		env.LDPreload = profile.LDPreload
	}

	if cfg.Build.CcacheDir != "" {
		env.CacheDirs["ccache"] = cfg.Build.CcacheDir
	}
	if cfg.Build.UVCacheDir != "" {
		env.CacheDirs["uv"] = cfg.Build.UVCacheDir
	}

	return env
}

// Run performs Init and then blocks until ctx is cancelled or a
// SIGINT/SIGTERM arrives. It is the body of the `stux env` command.
func Run(ctx context.Context, cfg *config.Config, runDir, workspaceDir string) error {
	if _, err := Init(cfg, runDir, workspaceDir); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Environment ready, waiting for shutdown signal")
	<-ctx.Done()

	// Drop the sentinel on the way out so restarts wait for a fresh init.
	if err := os.Remove(filepath.Join(runDir, readyFileName)); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove readiness sentinel: %v", err)
	}
	return nil
}

// ReadEnvironment loads env.json from runDir.
func ReadEnvironment(runDir string) (*Environment, error) {
	data, err := os.ReadFile(filepath.Join(runDir, envFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", envFileName, err)
	}
	var env Environment
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", envFileName, err)
	}
	return &env, nil
}

// ClearReady removes a leftover readiness sentinel from runDir, if any.
// Graceful shutdown removes the sentinel itself, but a SIGKILL'd or OOM'd
// run leaves it behind, where it would satisfy WaitReady before the next
// init has done anything.
func ClearReady(runDir string) error {
	if err := os.Remove(filepath.Join(runDir, readyFileName)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WaitReady polls runDir for the readiness sentinel until it appears,
// timeout elapses, or ctx is cancelled. The poll interval backs off from
// 50ms to 500ms.
func WaitReady(ctx context.Context, runDir string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	sentinel := filepath.Join(runDir, readyFileName)
	interval := 50 * time.Millisecond

	for {
		if _, err := os.Stat(sentinel); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("environment not ready after %s", timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		if interval < 500*time.Millisecond {
			interval *= 2
			if interval > 500*time.Millisecond {
				interval = 500 * time.Millisecond
			}
		}
	}
}
