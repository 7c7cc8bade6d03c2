package util

import (
	"io"
	"log/slog"
	"os"
)

type Logger = *slog.Logger

// NewLogger logs to stderr so stdout carries only reports.
func NewLogger(verbose bool) *slog.Logger {
	return NewLoggerTo(os.Stderr, verbose)
}

func NewLoggerTo(out io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
}
