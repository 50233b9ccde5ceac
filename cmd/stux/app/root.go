// Package app provides the command-line interface implementation for stux.
//
// This package contains all CLI commands and their implementations, following
// the Kubernetes CLI architecture pattern with cobra. Commands are organized
// hierarchically with a root command and subcommands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/stuxbench/stux/cmd/stux/client"
)

const (
	// cliName is the name of the CLI application
	cliName = "stux"

	// cliDescription is the short description shown in help text
	cliDescription = "stux - security benchmark environment controller"
)

// GlobalOptions holds options that are common to all commands
type GlobalOptions struct {
	// ServerURL is the stux server address
	ServerURL string

	// Verbose enables verbose output
	Verbose bool
}

// NewStuxCommand creates the root stux command with all subcommands.
//
// The root command provides the main entry point for the CLI. It sets up
// global flags, initializes configuration, and registers all subcommands.
//
// Returns:
//   - A configured cobra.Command ready for execution
//
// Example:
//
//	cmd := NewStuxCommand()
//	if err := cmd.Execute(); err != nil {
//	    os.Exit(1)
//	}
func NewStuxCommand() *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: cliDescription,
		Long: `stux is a command-line tool for running CVE-patching benchmark tasks
inside reproducible Docker environments.

It builds CPU-only inference-engine images, starts benchmark environments,
exposes the in-container tool server over stdio, and grades submitted patches.

The stux CLI communicates with a local controller process over HTTP. Make
sure the stux server is running before executing commands.`,
		SilenceUsage: true,
		// SilenceErrors is false by default - we want to show errors to users
	}

	// Add global flags
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "",
		"stux server address (default: http://localhost:11681)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")

	// Add subcommands
	cmd.AddCommand(
		NewListCommand(opts),
		NewShowCommand(opts),
		NewUpCommand(opts),
		NewPsCommand(opts),
		NewStopCommand(opts),
		NewRmCommand(opts),
		NewLogsCommand(opts),
		NewGradeCommand(opts),
		NewBuildCommand(opts),
		NewVersionCommand(opts),
		NewServeCommand(opts),
		NewMCPCommand(opts),
		NewEnvCommand(opts),
		NewLaunchCommand(opts),
	)

	return cmd
}

// getClient creates and returns a configured API client.
//
// This helper function initializes an HTTP client for communicating with
// the stux server. It determines the server address using the following
// priority:
//  1. --server flag (if specified)
//  2. Default: http://localhost:11681
//
// Parameters:
//   - opts: Global options containing server URL
//
// Returns:
//   - A configured client.Client instance
func getClient(opts *GlobalOptions) *client.Client {
	serverURL := opts.ServerURL

	// Default to localhost if not specified
	if serverURL == "" {
		serverURL = "http://localhost:11681"
	}

	return client.NewClient(serverURL)
}
