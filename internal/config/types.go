package config

import "time"

// Config is the root configuration for agenthub.
type Config struct {
	Server       ServerConfig       `yaml:"server,omitempty"`
	PrimaryAgent PrimaryAgentConfig `yaml:"primaryAgent,omitempty"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Store        StoreConfig        `yaml:"store,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
	MainAgent    MainAgentConfig    `yaml:"mainAgent,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket surface.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// PrimaryAgentConfig locates the MCP server that drives each conversation.
type PrimaryAgentConfig struct {
	URL       string `yaml:"url,omitempty"`
	Transport string `yaml:"transport,omitempty"` // "stream-http" | "sse"
	ToolName  string `yaml:"toolName,omitempty"`
}

// OrchestratorConfig bounds a single agent call.
type OrchestratorConfig struct {
	MaxRounds   int           `yaml:"maxRounds,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	CallTimeout time.Duration `yaml:"callTimeout,omitempty"`
}

// StoreConfig selects the agent record store.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "postgres"
	Path   string `yaml:"path,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// MainAgentConfig configures the bundled primary agent server.
type MainAgentConfig struct {
	Listen       string `yaml:"listen,omitempty"`
	BaseURL      string `yaml:"baseUrl,omitempty"`
	APIKey       string `yaml:"apiKey,omitempty"`
	Model        string `yaml:"model,omitempty"`
	SystemPrompt string `yaml:"systemPrompt,omitempty"`

	// FallbackModels are tried in order when Model fails with a retryable error.
	FallbackModels []string `yaml:"fallbackModels,omitempty"`
}
