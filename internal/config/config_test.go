package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "http://localhost:3100/mcp", cfg.PrimaryAgent.URL)
	assert.Equal(t, "stream-http", cfg.PrimaryAgent.Transport)
	assert.Equal(t, "chat", cfg.PrimaryAgent.ToolName)
	assert.Equal(t, 6, cfg.Orchestrator.MaxRounds)
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Orchestrator.CallTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.ConsoleStyle)
	assert.Equal(t, ":3100", cfg.MainAgent.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 8080
  bind: lan
  allowedOrigins:
    - http://localhost:5173
primaryAgent:
  url: http://main.internal:3100/mcp
  transport: sse
orchestrator:
  maxRounds: 3
  timeout: 2m
  callTimeout: 15s
store:
  driver: postgres
  dsn: postgres://agenthub@localhost/agenthub
logging:
  level: debug
  consoleStyle: json
mainAgent:
  model: gpt-4.1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "lan", cfg.Server.Bind)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "http://main.internal:3100/mcp", cfg.PrimaryAgent.URL)
	assert.Equal(t, "sse", cfg.PrimaryAgent.Transport)
	assert.Equal(t, "chat", cfg.PrimaryAgent.ToolName)
	assert.Equal(t, 3, cfg.Orchestrator.MaxRounds)
	assert.Equal(t, 2*time.Minute, cfg.Orchestrator.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Orchestrator.CallTimeout)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://agenthub@localhost/agenthub", cfg.Store.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)
	assert.Equal(t, "gpt-4.1", cfg.MainAgent.Model)
	assert.Equal(t, ":3100", cfg.MainAgent.Listen)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENTHUB_PORT", "12345")
	t.Setenv("AGENTHUB_LOG_LEVEL", "TRACE")
	t.Setenv("AGENTHUB_MAX_ROUNDS", "2")
	t.Setenv("AGENTHUB_TIMEOUT", "30s")
	t.Setenv("AGENTHUB_STORE_DRIVER", "Postgres")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Server.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Orchestrator.MaxRounds)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.Timeout)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("AGENTHUB_PORT", "not-a-number")
	t.Setenv("AGENTHUB_TIMEOUT", "soon")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Orchestrator.Timeout)
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("TEST_AGENTHUB_DSN", "postgres://u:p@db/agents")
	t.Setenv("TEST_AGENTHUB_KEY", "sk-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
store:
  driver: postgres
  dsn: ${TEST_AGENTHUB_DSN}
mainAgent:
  apiKey: ${TEST_AGENTHUB_KEY}
  baseUrl: ${TEST_AGENTHUB_UNSET_VAR}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/agents", cfg.Store.DSN)
	assert.Equal(t, "sk-test", cfg.MainAgent.APIKey)
	assert.Equal(t, "${TEST_AGENTHUB_UNSET_VAR}", cfg.MainAgent.BaseURL, "unset variables are left as-is")
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"server": map[string]any{
			"port": 9999,
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"server", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadRawMissingAndEmpty(t *testing.T) {
	raw, err := LoadRaw("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Empty(t, raw)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	raw, err = LoadRaw(path)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Empty(t, raw)
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Message: "boom"}
	assert.Equal(t, "config: boom", err.Error())
}
