package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields resolves ${ENV_VAR} references in credential and
// connection fields.
func expandSensitiveFields(cfg *Config) {
	cfg.Store.DSN = expandEnvVars(cfg.Store.DSN)
	cfg.MainAgent.APIKey = expandEnvVars(cfg.MainAgent.APIKey)
	cfg.MainAgent.BaseURL = expandEnvVars(cfg.MainAgent.BaseURL)
	cfg.PrimaryAgent.URL = expandEnvVars(cfg.PrimaryAgent.URL)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = defaultBind
	}
	if cfg.PrimaryAgent.URL == "" {
		cfg.PrimaryAgent.URL = DefaultPrimaryAgentURL
	}
	if cfg.PrimaryAgent.Transport == "" {
		cfg.PrimaryAgent.Transport = defaultTransport
	}
	if cfg.PrimaryAgent.ToolName == "" {
		cfg.PrimaryAgent.ToolName = DefaultPrimaryToolName
	}
	if cfg.Orchestrator.MaxRounds == 0 {
		cfg.Orchestrator.MaxRounds = DefaultMaxRounds
	}
	if cfg.Orchestrator.Timeout == 0 {
		cfg.Orchestrator.Timeout = DefaultTimeout
	}
	if cfg.Orchestrator.CallTimeout == 0 {
		cfg.Orchestrator.CallTimeout = DefaultCallTimeout
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaultStoreDriver
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = defaultConsoleStyle
	}
	if cfg.MainAgent.Listen == "" {
		cfg.MainAgent.Listen = DefaultMainAgentListen
	}
	if cfg.MainAgent.Model == "" {
		cfg.MainAgent.Model = DefaultMainAgentModel
	}
}

// applyEnvOverrides reads AGENTHUB_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTHUB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AGENTHUB_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("AGENTHUB_PRIMARY_URL"); v != "" {
		cfg.PrimaryAgent.URL = v
	}
	if v := os.Getenv("AGENTHUB_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxRounds = n
		}
	}
	if v := os.Getenv("AGENTHUB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Orchestrator.Timeout = d
		}
	}
	if v := os.Getenv("AGENTHUB_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTHUB_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("AGENTHUB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.MainAgent.APIKey == "" {
		cfg.MainAgent.APIKey = v
	}
}
