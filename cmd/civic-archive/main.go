package main

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/leeyeon3724/civic-archive-api/internal/cmd"
	"github.com/leeyeon3724/civic-archive-api/internal/config"
	"github.com/leeyeon3724/civic-archive-api/internal/server/handlers"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-10-16"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetBuildInfo(handlers.BuildInfo{
		Name:      config.AppName,
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})

	if err := cmd.Execute(); err != nil {
		// Commands log their own failures; this only sets the exit code.
		cmd.ExitWithCodeStderr(foundry.ExitFailure, "Command execution failed", err)
	}
}
