package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SlogConfig controls the supervisor's own structured logging.
type SlogConfig struct {
	Level string `json:"level"` // debug, info, warn, error (default info)
	Color bool   `json:"color"` // ANSI color for terminal output
	JSON  bool   `json:"json"`  // JSON handler instead of text
}

// NewSlog builds a *slog.Logger for the supervisor itself.
func NewSlog(w io.Writer, cfg SlogConfig) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	switch {
	case cfg.JSON:
		h = slog.NewJSONHandler(w, opts)
	case cfg.Color:
		h = NewColorTextHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Setup installs the configured logger as the process-wide default.
func Setup(cfg SlogConfig) *slog.Logger {
	l := NewSlog(os.Stderr, cfg)
	slog.SetDefault(l)
	return l
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
