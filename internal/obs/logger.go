package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger creates a slog logger with dev-friendly output by default.
func NewLogger(env, level string) *slog.Logger {
	return newLogger(os.Stdout, env, level)
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	lvl := ParseLevel(level)
	if env == "dev" || env == "local" {
		handler := tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
			AddSource:  true,
		})
		return slog.New(handler)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	})
	return slog.New(handler)
}

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// Discard returns a logger that drops every record. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}
