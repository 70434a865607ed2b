package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Port(t *testing.T) {
	for _, port := range []int{0, 8080, 65535} {
		cfg := Defaults()
		cfg.Server.Port = port
		assert.Empty(t, Validate(&cfg), "port %d should be valid", port)
	}

	for _, port := range []int{-1, 70000} {
		cfg := Defaults()
		cfg.Server.Port = port
		issues := Validate(&cfg)
		require.Len(t, issues, 1)
		assert.Equal(t, "server.port", issues[0].Path)
	}
}

func TestValidate_Bind(t *testing.T) {
	for _, bind := range []string{"loopback", "lan", ""} {
		cfg := Defaults()
		cfg.Server.Bind = bind
		assert.Empty(t, Validate(&cfg), "bind %q should be valid", bind)
	}

	cfg := Defaults()
	cfg.Server.Bind = "tailnet"
	assert.Contains(t, issuePaths(Validate(&cfg)), "server.bind")

	cfg = Defaults()
	cfg.Server.Bind = "custom"
	assert.Contains(t, issuePaths(Validate(&cfg)), "server.customBindHost")

	cfg.Server.CustomBindHost = "10.0.0.5"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_PrimaryAgent(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		transport string
		wantPath  string
	}{
		{"valid", "http://localhost:3100/mcp", "stream-http", ""},
		{"valid sse", "https://agent.example.com/sse", "sse", ""},
		{"relative url", "/mcp", "stream-http", "primaryAgent.url"},
		{"no host", "http://", "stream-http", "primaryAgent.url"},
		{"bad transport", "http://localhost:3100/mcp", "grpc", "primaryAgent.transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.PrimaryAgent.URL = tt.url
			cfg.PrimaryAgent.Transport = tt.transport
			issues := Validate(&cfg)
			if tt.wantPath == "" {
				assert.Empty(t, issues)
				return
			}
			assert.Contains(t, issuePaths(issues), tt.wantPath)
		})
	}
}

func TestValidate_Orchestrator(t *testing.T) {
	cfg := Defaults()
	cfg.Orchestrator.MaxRounds = -1
	assert.Contains(t, issuePaths(Validate(&cfg)), "orchestrator.maxRounds")

	cfg = Defaults()
	cfg.Orchestrator.Timeout = 10 * time.Second
	cfg.Orchestrator.CallTimeout = time.Minute
	assert.Contains(t, issuePaths(Validate(&cfg)), "orchestrator.callTimeout")

	cfg = Defaults()
	cfg.Orchestrator.CallTimeout = -time.Second
	assert.Contains(t, issuePaths(Validate(&cfg)), "orchestrator.callTimeout")
}

func TestValidate_Store(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Driver = "mysql"
	assert.Contains(t, issuePaths(Validate(&cfg)), "store.driver")

	cfg = Defaults()
	cfg.Store.Driver = "postgres"
	assert.Contains(t, issuePaths(Validate(&cfg)), "store.dsn")

	cfg.Store.DSN = "postgres://localhost/agenthub"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Logging(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace", ""} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %q should be valid", level)
	}

	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	cfg.Logging.ConsoleStyle = "compact"
	issues := Validate(&cfg)
	require.Len(t, issues, 2)
	assert.Equal(t, []string{"logging.level", "logging.consoleStyle"}, issuePaths(issues))
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "server.port", Message: "port must be 0-65535, got -1"}
	assert.Equal(t, "server.port: port must be 0-65535, got -1", issue.String())
}
