// Package logger provides the process-wide zerolog logger used by the
// engine, the session layer and the CLI.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global logger instance.
var Log zerolog.Logger

func init() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	Log = newLogger(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Configure applies LOG_LEVEL and LOG_FORMAT settings.
func Configure(level string, json bool) {
	if json {
		SetJSON()
	}
	SetLevel(level)
}

// SetLevel sets the global log level. Unknown or empty values mean info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// SetJSON switches to JSON output on stdout (for production).
func SetJSON() {
	Log = newLogger(os.Stdout)
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}
