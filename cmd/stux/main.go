// Command stux is the security benchmark environment controller.
//
// It serves as both the host-side CLI/HTTP controller and the in-container
// entry point (launch, env, mcp subcommands).
package main

import (
	"os"

	"github.com/stuxbench/stux/cmd/stux/app"

	// Builtin task specifications register themselves at init time.
	_ "github.com/stuxbench/stux/internal/tasks/cves"
)

func main() {
	cmd := app.NewStuxCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
