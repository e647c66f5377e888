// Package log builds the slog loggers the binaries share.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a logger writing to w. level accepts the slog names (debug,
// info, warn, error, optionally with an offset such as "info+2"); format is
// "text" or "json". Empty values mean info and text.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level

	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	options := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: expected text or json", format)
	}
}

// Setup installs a stderr logger as the process default.
func Setup(level, format string) error {
	logger, err := New(os.Stderr, level, format)
	if err != nil {
		return err
	}

	slog.SetDefault(logger)

	return nil
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
