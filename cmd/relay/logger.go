package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/skgma1019/music-player-app/internal/config"
)

// initLogger creates the structured logger described by cfg. The returned
// closer releases a log file, if one was opened.
func initLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	var (
		output io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
		} else {
			output = file
			closer = file
		}
	}

	return newLogger(cfg, output), closer
}

func newLogger(cfg config.LoggingConfig, output io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
