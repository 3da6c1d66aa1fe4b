package logger_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alkime/sokuji/internal/config"
	"github.com/alkime/sokuji/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("bogus"))
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "loopback.log")

	lg, closer := logger.SetupLogger(&config.Config{
		Env:           "production",
		LogLevel:      "warn",
		LogFile:       path,
		LogMaxSizeMB:  1,
		LogMaxBackups: 1,
		LogMaxAgeDays: 1,
	})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	lg.Info("hidden")
	lg.Warn("overrun reported", "frames", 2)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "overrun reported")
	assert.NotContains(t, string(data), "hidden")
}

func TestSetupLogger_DevelopmentIsVerbose(t *testing.T) {
	lg, closer := logger.SetupLogger(&config.Config{Env: "development", LogLevel: "info"})
	defer closer.Close()
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	assert.True(t, lg.Enabled(t.Context(), slog.LevelDebug))
}
