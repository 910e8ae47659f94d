package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. JSON output by default; set
// LINKUP_LOG_PRETTY=true for a human-readable handler during local
// development (LINKUP_LOG_COLOR controls ANSI colors).
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	if EnvBool("LINKUP_LOG_PRETTY", false) {
		color := EnvBool("LINKUP_LOG_COLOR", true)
		return slog.New(newPrettyHandler(os.Stdout, opts, color))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(s string) slog.Level {
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
