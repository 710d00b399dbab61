package env

import (
	"log/slog"
	"strings"
)

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLogLevel maps LOG_LEVEL (debug, info, warn, error; case-insensitive) to a
// slog.Level, returning fallback when the variable is unset or unrecognised.
func ParseLogLevel(fallback slog.Level) slog.Level {
	if level, ok := logLevels[strings.ToLower(strings.TrimSpace(Get("LOG_LEVEL", "")))]; ok {
		return level
	}
	return fallback
}
