package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort            = 3000
	DefaultPrimaryAgentURL = "http://localhost:3100/mcp"
	DefaultPrimaryToolName = "chat"
	DefaultMaxRounds       = 6
	DefaultTimeout         = 5 * time.Minute
	DefaultCallTimeout     = 60 * time.Second
	DefaultMainAgentListen = ":3100"
	DefaultMainAgentModel  = "gpt-4o-mini"

	defaultTransport    = "stream-http"
	defaultStoreDriver  = "sqlite"
	defaultLogLevel     = "info"
	defaultConsoleStyle = "pretty"
	defaultBind         = "loopback"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}
