// Twining: knowledge coordination MCP server for multi-agent coding.
//
// Usage:
//
//	twining serve     # Start MCP server (stdio transport)
//	twining status    # Project health
//	twining watch     # Stream new blackboard entries
package main

import (
	"os"

	"github.com/HendryAvila/twining/cmd/twining/commands"
)

// Build information, set by goreleaser.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
