// Package logger builds the process logger from the resolved
// configuration and owns the component-attribute convention every
// package hangs its records on.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/qidu/webot/internal/infra/config"
)

// componentKey tags every record with the subsystem that emitted it, so
// one gateway session, chat adapter, and web server interleave legibly
// in a single stream.
const componentKey = "component"

// New builds the root logger from the configuration. The debug toggle is
// already folded into cfg.Level by config.Load, so the level string is
// authoritative here. The returned closer flushes file-backed outputs.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	sink, closer, err := openSink(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return slog.New(newHandler(sink, cfg)), closer, nil
}

// Component derives a child logger tagged for one subsystem. All
// packages go through this instead of spelling the attribute key
// themselves.
func Component(log *slog.Logger, name string) *slog.Logger {
	return log.With(componentKey, name)
}

func newHandler(w io.Writer, cfg config.LoggerConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: level(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func level(s string) slog.Level {
	switch strings.ToLower(s) {
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

func openSink(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
