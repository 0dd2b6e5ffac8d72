// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the global logger instance
var Logger *slog.Logger

// Level is the current log level
var Level = new(slog.LevelVar)

// Format selects the handler encoding.
type Format string

const (
	// FormatText is the human-oriented default for terminal use.
	FormatText Format = "text"
	// FormatJSON is for machine consumption (daemon mode, log shippers).
	FormatJSON Format = "json"
)

func init() {
	// Initialize with a default logger to prevent panics
	Init(slog.LevelWarn, FormatText, os.Stderr)
}

// Init initializes the logger with the specified level and format
func Init(level slog.Level, format Format, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: Level}
	var handler slog.Handler
	if format == FormatJSON {
		opts.AddSource = true
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	Logger = slog.New(handler)
	Level.Set(level)
}

// SetLevel changes the log level programmatically
func SetLevel(level slog.Level) {
	Level.Set(level)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
