// Package log configures the process-wide structured logger.
package log

import (
	"log/slog"
	"os"
)

func Setup(logLevel string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})))
}

// ParseLevel maps a textual level to slog. Unknown values fall back to info.
func ParseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// OrDefault returns logger, or the default logger scoped to module when nil.
func OrDefault(logger *slog.Logger, module string) *slog.Logger {
	if logger == nil {
		return WithModule(module)
	}

	return logger.With("module", module)
}
