// Package logging configures the process-wide structured logger.
//
// Call sites log through log/slog directly using snake_case event names
// followed by key/value attributes, e.g.
//
//	slog.Info("retention_run_complete", "group_deleted", n)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs a text handler on stderr at the given level as the default
// slog logger and returns it.
func Init(level string) *slog.Logger {
	return InitWriter(os.Stderr, level)
}

func InitWriter(w io.Writer, level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

func ParseLevel(level string) slog.Level {
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
