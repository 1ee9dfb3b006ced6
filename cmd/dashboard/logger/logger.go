// Package logger builds the dashboard's structured logger from configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/HatiCode/rewardboard/cmd/dashboard/config"
)

// New returns a logger writing to stderr in the configured format and level.
func New(cfg *config.Config) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel)
}

// NewWithWriter returns a logger writing to w. Unknown formats fall back to
// text and unknown levels to info.
func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "rewardboard")
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
