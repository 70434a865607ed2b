// Package logging provides zerolog-backed loggers scoped by subsystem.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog to provide subsystem-scoped child loggers.
type Logger struct {
	zl zerolog.Logger
}

// Console styles accepted by NewWithStyle.
const (
	StylePretty = "pretty"
	StyleJSON   = "json"
)

// New creates a root logger writing to the given writer at the specified level.
// If w is nil, defaults to pretty console output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	zl = zl.Level(parseLevel(level))
	return &Logger{zl: zl}
}

// NewWithStyle creates a root logger on stderr using the configured console
// style. Unknown styles fall back to pretty output.
func NewWithStyle(level, style string) *Logger {
	if style == StyleJSON {
		return New(os.Stderr, level)
	}
	return New(nil, level)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return &Logger{zl: l.zl.With().Str("subsystem", subsystem).Logger()}
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

// Trace logs at trace level.
func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }

// Debug logs at debug level.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info logs at info level.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn logs at warn level.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error logs at error level.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Zerolog returns the underlying zerolog.Logger for advanced use.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// ValidLevels lists the level names accepted by New.
var ValidLevels = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "silent":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
