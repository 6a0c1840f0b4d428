// ferret is the command-line interface for the go-ferret event-sourced
// aggregate runtime.
//
// Usage:
//
//	ferret <command> [flags]
//
// Commands:
//
//	init        Create a ferret.yaml configuration
//	migrate     Create the event log schema
//	counter     Run the built-in counter domain
//	stream      Inspect event streams
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// Examples:
//
//	# Initialize a project backed by SQLite
//	ferret init my-project
//
//	# Increment a counter five times, printing spans to stderr
//	ferret counter increment clicks --times 5 --trace
//
//	# Show the stream behind it
//	ferret stream info counter-name=clicks
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-ferret/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
