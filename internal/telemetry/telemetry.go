// Package telemetry wires up structured logging for the retrieval core:
// a rotating file writer plus an optional stderr tee, both behind a
// single slog.Logger, matching the teacher's log-setup idiom.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where and how the engine logs.
type Config struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string
	// FilePath is the log file path. Empty uses DefaultLogPath.
	FilePath string
	// MaxSizeMB is the rotation threshold.
	MaxSizeMB int
	// MaxFiles is the number of rotated files retained.
	MaxFiles int
	// WriteToStderr also tees output to stderr.
	WriteToStderr bool
}

// DefaultConfig returns the spec §6 default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup initializes file-based structured logging and returns the
// logger plus a cleanup function that must be called to flush and
// close the underlying file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultLogPath()
	}
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// LevelFromString exposes level parsing for callers building their own handlers.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
