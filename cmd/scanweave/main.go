// Command scanweave is the entry point for the scan orchestrator CLI.
package main

import (
	"github.com/scanweave/scanweave/cmd/cli"
)

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
