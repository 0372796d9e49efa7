// Package logging builds the process-wide slog logger from config.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dkoval/polymarket-data/internal/config"
)

// New creates a slog.Logger per the logging config. With no directory set,
// logs go to stdout as text. With a directory, JSON logs are written both to
// stdout and to a size-rotated file under that directory.
func New(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level(cfg.Level)}

	if cfg.Directory == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		// Fall back to stderr if the directory cannot be created
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, "recorder.log"),
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     28, // Days
		Compress:   true,
	}

	writer := io.MultiWriter(os.Stdout, fileLogger)
	return slog.New(slog.NewJSONHandler(writer, opts))
}

func level(s string) slog.Level {
	switch s {
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
