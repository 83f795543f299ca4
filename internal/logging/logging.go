// Package logging builds the zerolog loggers used across the SDK. The SDK
// never logs on its own: every component defaults to a no-op logger and
// stays silent until the caller installs one built here (or any other
// zerolog.Logger).
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger construction options.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	// Unknown or empty values fall back to info.
	Level string

	// Console switches from JSON lines to human-readable console output.
	Console bool

	// Output is the destination writer. Default: os.Stderr.
	Output io.Writer
}

// New returns a logger configured per cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Nop returns the silent logger components default to.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
