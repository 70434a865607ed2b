package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validBinds         = []string{"loopback", "lan", "custom"}
	validTransports    = []string{"stream-http", "sse"}
	validDrivers       = []string{"sqlite", "postgres"}
	validLogLevels     = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	validConsoleStyles = []string{"pretty", "json"}
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path string, valid []string, got string) {
		if got != "" && !slices.Contains(valid, got) {
			add(path, "must be one of %v, got %q", valid, got)
		}
	}

	// Server
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		add("server.port", "port must be 0-65535, got %d", cfg.Server.Port)
	}
	oneOf("server.bind", validBinds, cfg.Server.Bind)
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		add("server.customBindHost", "required when bind is custom")
	}

	// Primary agent
	if cfg.PrimaryAgent.URL != "" {
		if u, err := url.Parse(cfg.PrimaryAgent.URL); err != nil || u.Scheme == "" || u.Host == "" {
			add("primaryAgent.url", "must be an absolute URL, got %q", cfg.PrimaryAgent.URL)
		}
	}
	oneOf("primaryAgent.transport", validTransports, cfg.PrimaryAgent.Transport)

	// Orchestrator
	if cfg.Orchestrator.MaxRounds < 0 {
		add("orchestrator.maxRounds", "must be positive, got %d", cfg.Orchestrator.MaxRounds)
	}
	if cfg.Orchestrator.Timeout < 0 {
		add("orchestrator.timeout", "must not be negative")
	}
	if cfg.Orchestrator.CallTimeout < 0 {
		add("orchestrator.callTimeout", "must not be negative")
	}
	if cfg.Orchestrator.Timeout > 0 && cfg.Orchestrator.CallTimeout > cfg.Orchestrator.Timeout {
		add("orchestrator.callTimeout", "must not exceed orchestrator.timeout (%s)", cfg.Orchestrator.Timeout)
	}

	// Store
	oneOf("store.driver", validDrivers, cfg.Store.Driver)
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		add("store.dsn", "required when driver is postgres")
	}

	// Logging
	oneOf("logging.level", validLogLevels, cfg.Logging.Level)
	oneOf("logging.consoleStyle", validConsoleStyles, cfg.Logging.ConsoleStyle)

	return issues
}
