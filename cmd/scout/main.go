// Command scout is the CLI entry point for the repository-intelligence
// pipeline: scan a source tree, discover comparable repositories on the
// remote host, clone the strongest candidates, validate their structure
// and modernity, bundle their review scope, and rank them against the
// source project. It also carries an optional longitudinal watch
// subsystem for tracking repos over time. See internal/cli for the full
// command surface.
package main

import (
	"os"

	"github.com/scoutforge/scout/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
