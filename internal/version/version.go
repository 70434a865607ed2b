// Package version carries build metadata for the agenthub binaries.
package version

import (
	"fmt"
	"runtime"
)

// Name identifies this software to remote MCP servers.
const Name = "agenthub"

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/HuxJiang/ai-agent-platform/internal/version.Version=1.0.0
//	  -X github.com/HuxJiang/ai-agent-platform/internal/version.Commit=abc123
//	  -X github.com/HuxJiang/ai-agent-platform/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s/%s)",
		Name, Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent returns the product token sent on outbound HTTP requests.
func UserAgent() string {
	return Name + "/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
