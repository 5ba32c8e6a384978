// Package logger builds the structured slog loggers shared by the CLI, the
// models and the report job.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds the configuration for the logger.
type Config struct {
	// Output is the writer to send logs to (defaults to os.Stdout).
	Output io.Writer
	// Level is the minimum log level to output.
	Level slog.Level
	// Format selects the handler: "json" (default) or "text".
	Format string
	// Component, when set, is attached to every record as the "component" attribute.
	Component string
	// AddSource adds source code position to log records.
	AddSource bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  slog.LevelInfo,
		Output: os.Stdout,
		Format: "json",
	}
}

// New creates a new logger with the provided configuration.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	l := slog.New(handler)
	if cfg.Component != "" {
		l = l.With("component", cfg.Component)
	}
	return l
}

// NewWithLevel creates a new JSON logger with the specified log level.
func NewWithLevel(level slog.Level) *slog.Logger {
	cfg := DefaultConfig()
	cfg.Level = level
	return New(cfg)
}

// Discard returns a logger that drops every record. Handy in tests.
func Discard() *slog.Logger {
	return New(&Config{Output: io.Discard, Level: slog.LevelError})
}

// ParseLevel converts a string to a slog.Level.
// Supported values: "debug", "info", "warn", "error".
// Returns slog.LevelInfo if the level string is not recognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForComponent returns a child logger tagged with the given component name.
func ForComponent(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With("component", component)
}
