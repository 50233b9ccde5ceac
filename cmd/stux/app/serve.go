package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stuxbench/stux/internal/config"
	"github.com/stuxbench/stux/internal/logger"
	"github.com/stuxbench/stux/internal/runtime"
	"github.com/stuxbench/stux/internal/server"
	"github.com/stuxbench/stux/internal/tasks"
)

// ServeOptions holds options for the serve command
type ServeOptions struct {
	*GlobalOptions

	// Host is the server host address
	Host string

	// Port is the server port
	Port int

	// DataDir is the data directory for run state and build contexts
	DataDir string

	// ConfigDir is the directory containing configuration files
	ConfigDir string
}

// NewServeCommand creates the serve command.
//
// The serve command starts the stux HTTP controller. This is primarily for
// development and testing. In production, the controller should be run as
// a systemd service.
//
// Usage:
//
//	stux serve [--host HOST] [--port PORT]
//
// Examples:
//
//	# Start server on default port (11681)
//	stux serve
//
//	# Start server on specific host and port
//	stux serve --host 0.0.0.0 --port 9090
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for starting the server
func NewServeCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ServeOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the stux controller",
		Long: `Start the stux HTTP controller for handling API requests.

The controller manages benchmark environments on the local Docker daemon:
building task images, starting and stopping containers, streaming logs and
grading workspaces. Press Ctrl+C to gracefully shut down.`,
		Example: `  # Start server on default settings (localhost:11681)
  stux serve

  # Start server on all interfaces
  stux serve --host 0.0.0.0

  # Start server on custom port
  stux serve --port 9090

  # Start with verbose logging
  stux serve -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate port range
			if opts.Port < 1 || opts.Port > 65535 {
				return fmt.Errorf("invalid port number: %d (must be between 1-65535)", opts.Port)
			}
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "localhost",
		"server host address")
	cmd.Flags().IntVar(&opts.Port, "port", 11681,
		"server port")
	cmd.Flags().StringVar(&opts.DataDir, "data", "",
		"data directory for run state and build contexts (default: ~/.stux/data)")
	cmd.Flags().StringVar(&opts.ConfigDir, "config", "",
		"directory containing configuration files (default: ~/.stux)")

	return cmd
}

// runServe executes the serve command logic.
//
// This function starts the HTTP controller and handles graceful shutdown on
// interrupt signals.
//
// Parameters:
//   - opts: Serve command options
//
// Returns:
//   - nil on successful shutdown
//   - error if server startup or shutdown fails
func runServe(opts *ServeOptions) error {
	// Create configuration with custom directories if specified
	cfg := config.NewConfigWithCustomDirs(opts.ConfigDir, opts.DataDir)
	cfg.BinaryVersion = GetVersion()
	cfg.Server.Host = opts.Host
	cfg.Server.Port = opts.Port

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Get or create server identity
	identity, err := cfg.GetOrCreateServerIdentity()
	if err != nil {
		return fmt.Errorf("failed to get server identity: %w", err)
	}
	cfg.Server.Name = identity.Name
	logger.Info("Server identity: %s", identity.Name)

	// Built-in tasks are registered at init time; a tasks.yaml in the
	// config directory extends or overrides them.
	tasksPath := cfg.Storage.TasksConfigPath()
	if _, statErr := os.Stat(tasksPath); statErr == nil {
		if err := tasks.LoadAndRegisterTasks(tasks.DefaultRegistry(), tasksPath); err != nil {
			return fmt.Errorf("failed to load tasks from %s: %w", tasksPath, err)
		}
		logger.Info("Loaded task definitions from %s", tasksPath)
	}
	logger.Info("Registered tasks: %d", len(tasks.DefaultRegistry().List()))
	logger.Info("Data directory: %s", cfg.Storage.DataDir)

	// Initialize runtime manager against the local Docker daemon
	runtimeMgr, err := runtime.NewManager(identity.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime manager: %w", err)
	}
	defer runtimeMgr.Close()

	// Create server with runtime manager
	srv := server.NewServer(cfg, runtimeMgr, GetVersion())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Enable debug logging if verbose
	if opts.Verbose {
		logger.SetDebug(true)
	}

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Press Ctrl+C to stop")
		if err := srv.Start(); err != nil {
			// Check for common errors
			if isAddressInUse(err) {
				logger.Error("Port %d is already in use", opts.Port)
				logger.Error("Please stop the existing server or use a different port with --port")
				errChan <- fmt.Errorf("address already in use: %s:%d", opts.Host, opts.Port)
				return
			}
			logger.Error("Server failed to start: %v", err)
			errChan <- err
			return
		}
		errChan <- nil
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		logger.Info("Received interrupt signal, shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info("Server stopped successfully")
		return nil

	case err := <-errChan:
		return err
	}
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "bind: address already in use") ||
		strings.Contains(err.Error(), "bind: Only one usage")
}
