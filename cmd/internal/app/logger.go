package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger creates a structured logger writing to stdout and installs it as
// slog's default.
func NewLogger(level, format string) *slog.Logger {
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	log := slog.New(newHandler(os.Stdout, level, format, isTTY))
	slog.SetDefault(log)
	return log
}

func newHandler(w io.Writer, level, format string, isTTY bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "pretty", "text":
		return newPrettyHandler(w, opts, isTTY)
	case "auto":
		if isTTY {
			return newPrettyHandler(w, opts, true)
		}
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
