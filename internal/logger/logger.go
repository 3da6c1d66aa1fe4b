package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/alkime/sokuji/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger configures structured logging based on environment.
// When cfg.LogFile is set, records are also written to a rotating file; the
// returned closer releases it.
func SetupLogger(cfg *config.Config) (*slog.Logger, io.Closer) {
	// Determine log level
	logLevel := ParseLevel(cfg.LogLevel)
	if cfg.Env == "development" {
		logLevel = min(logLevel, slog.LevelDebug)
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB, // megabytes
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	// Create JSON handler for structured logging
	//nolint:exhaustruct // Using default values for other HandlerOptions fields
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	})

	logger := slog.New(handler)

	// Set as default logger
	slog.SetDefault(logger)

	return logger, closer
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}

	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
