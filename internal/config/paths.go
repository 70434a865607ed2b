package config

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultBaseDir = ".agenthub"

// Paths holds resolved filesystem paths for agenthub data.
type Paths struct {
	Base   string // ~/.agenthub
	Config string // ~/.agenthub/config.yaml
	Data   string // ~/.agenthub/data
	Logs   string // ~/.agenthub/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If AGENTHUB_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("AGENTHUB_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DatabasePath returns the SQLite file used when the store config leaves it unset.
func (p Paths) DatabasePath() string {
	return filepath.Join(p.Data, "agenthub.db")
}

// blockedKeys are keys that must never appear in config paths.
var blockedKeys = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// ParseConfigPath splits a dot-separated config path into segments.
// Returns an error if any segment is blocked or empty.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if blockedKeys[p] {
			return nil, &ConfigError{Message: "config path contains blocked key: " + p}
		}
	}
	return parts, nil
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value in a nested map, creating intermediate maps as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		m, ok := current[key].(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}
