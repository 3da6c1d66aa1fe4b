package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alkime/sokuji/internal/audio"
	"github.com/alkime/sokuji/internal/config"
	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/internal/logger"
	"github.com/alkime/sokuji/internal/metrics"
	"github.com/alkime/sokuji/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup structured logging
	appLogger, logCloser := logger.SetupLogger(cfg)

	err = run(cfg, appLogger)
	if err != nil {
		appLogger.Error("Server exited with error", "error", err)
	}

	_ = logCloser.Close()

	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.DeviceOptions()
	if err != nil {
		return fmt.Errorf("failed to resolve device options: %w", err)
	}
	opts.Logger = logger

	dev, err := driver.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create loopback device: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Error("Failed to stop loopback device", "error", err)
		}
	}()

	// Log startup information
	logger.Info("Starting Sokuji loopback server",
		"env", cfg.Env,
		"port", cfg.Port,
		"device", opts.Identity.DeviceName,
		"device_uid", opts.Identity.DeviceUID(),
	)

	if cfg.BridgeCapture || cfg.BridgePlayback {
		bridges, err := startBridges(ctx, cfg, dev, logger)
		defer func() {
			for _, b := range bridges {
				if err := b.Stop(context.Background()); err != nil {
					logger.Error("Failed to stop audio device", "error", err)
				}
				b.Dealloc(context.Background())
			}
		}()
		if err != nil {
			return fmt.Errorf("failed to start host audio bridges: %w", err)
		}
	}

	var reg *prometheus.Registry
	if cfg.MetricsEnabled {
		reg = metrics.NewRegistry(dev, dev.Identity())
	}

	return server.Run(ctx, server.New(cfg, dev, reg, logger))
}

// startBridges negotiates the default format, starts both endpoints and
// attaches the configured host devices to them.
func startBridges(ctx context.Context, cfg *config.Config, dev *driver.Device, logger *slog.Logger) ([]audio.Device, error) {
	f, err := dev.Negotiate(driver.FormatDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("failed to negotiate default format: %w", err)
	}

	if err := dev.Output().Start(); err != nil {
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	if err := dev.Input().Start(); err != nil {
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	var bridges []audio.Device

	if cfg.BridgeCapture {
		capture := audio.NewDevice(audio.DeviceConfig{
			CaptureChannels: f.Channels,
			SampleRate:      int(f.SampleRate),
			DeviceName:      cfg.BridgeSource,
		}, logger)
		if err := capture.CaptureInto(ctx, dev.Output()); err != nil {
			return bridges, err
		}
		bridges = append(bridges, capture)
	}

	if cfg.BridgePlayback {
		playback := audio.NewDevice(audio.DeviceConfig{
			PlaybackChannels: f.Channels,
			SampleRate:       int(f.SampleRate),
		}, logger)
		if err := playback.PlaybackFrom(ctx, dev.Input()); err != nil {
			return bridges, err
		}
		bridges = append(bridges, playback)
	}

	for _, b := range bridges {
		if err := b.Start(ctx); err != nil {
			return bridges, err
		}
	}

	logger.Info("Host audio bridges started",
		"capture", cfg.BridgeCapture,
		"playback", cfg.BridgePlayback,
		"format", f.String(),
	)

	return bridges, nil
}
