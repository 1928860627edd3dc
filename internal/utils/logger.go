package utils

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger builds the developer-facing logger. Colour is only used when f is a terminal.
func NewLogger(f *os.File, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(
		tint.NewHandler(f, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05",
			NoColor:    !isatty.IsTerminal(f.Fd()),
		}),
	), nil
}

// ParseLevel maps a --log-level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level '%s'. Must be one of: debug, info, warn, error", level)
	}
}

// DiscardLogger returns a logger that drops everything. Used when no logger is injected.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
