// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used by all fognet
// components. It wraps charmbracelet/log and carries component and error
// context as key-value fields.
package logging

import (
	"io"
	"os"

	charm "github.com/charmbracelet/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Output: os.Stderr,
	}
}

// Logger is a structured logger with key-value context.
type Logger struct {
	l *charm.Logger
}

// New creates a new Logger from the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level, err := charm.ParseLevel(cfg.Level)
	if err != nil {
		level = charm.InfoLevel
	}
	l := charm.NewWithOptions(out, charm.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	return &Logger{l: l}
}

var defaultLogger = New(DefaultConfig())

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the process-wide default logger.
func Default() *Logger {
	return defaultLogger
}

// WithComponent returns a logger scoped to the named component, derived from
// the default logger.
func WithComponent(name string) *Logger {
	return defaultLogger.WithComponent(name)
}

// WithComponent returns a child logger tagged with the component name.
func (lg *Logger) WithComponent(name string) *Logger {
	return &Logger{l: lg.l.With("component", name)}
}

// WithError returns a child logger carrying the error as a field.
func (lg *Logger) WithError(err error) *Logger {
	if err == nil {
		return lg
	}
	return &Logger{l: lg.l.With("error", err)}
}

// WithFields returns a child logger carrying the given key-value pairs.
func (lg *Logger) WithFields(keyvals ...any) *Logger {
	return &Logger{l: lg.l.With(keyvals...)}
}

// Debug logs at debug level with optional key-value pairs.
func (lg *Logger) Debug(msg string, keyvals ...any) { lg.l.Debug(msg, keyvals...) }

// Info logs at info level with optional key-value pairs.
func (lg *Logger) Info(msg string, keyvals ...any) { lg.l.Info(msg, keyvals...) }

// Warn logs at warn level with optional key-value pairs.
func (lg *Logger) Warn(msg string, keyvals ...any) { lg.l.Warn(msg, keyvals...) }

// Error logs at error level with optional key-value pairs.
func (lg *Logger) Error(msg string, keyvals ...any) { lg.l.Error(msg, keyvals...) }
