package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alkime/sokuji/internal/audio"
	"github.com/alkime/sokuji/internal/config"
	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/pkg/uictl"
	"github.com/jonboulle/clockwork"
)

// openDevice builds a stopped device from the environment and the global
// flags.
func (g *Globals) openDevice() (*driver.Device, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if g.IdentityFile != "" {
		cfg.IdentityFile = g.IdentityFile
	}

	if g.SampleRate != 0 {
		cfg.SampleRate = g.SampleRate
	}

	opts, err := cfg.DeviceOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = slog.Default()

	dev, err := driver.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create loopback device: %w", err)
	}

	return dev, nil
}

// session is a running device with a tap on its input and any host bridges
// attached to it.
type session struct {
	dev    *driver.Device
	format driver.FormatDescriptor
	tap    *audio.Tap
	clock  clockwork.Clock
	mixer  *audio.Mixer
	source audio.Device

	bridges []audio.Device
	wg      sync.WaitGroup
}

// startSession negotiates the default format and starts both endpoints.
func (g *Globals) startSession() (*session, error) {
	dev, err := g.openDevice()
	if err != nil {
		return nil, err
	}

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

	clk := dev.Clock().Host()

	tap, err := audio.NewTap(audio.TapConfig{
		Source:    dev.Input(),
		Position:  dev.Clock(),
		Channels:  f.Channels,
		MaxFrames: dev.Ring().Capacity(),
		Clock:     clk,
		Logger:    slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tap: %w", err)
	}

	return &session{dev: dev, format: f, tap: tap, clock: clk}, nil
}

func (s *session) channels() int {
	return s.format.Channels
}

// MixFlags choose what the mixer writes into the output endpoint. The mixer
// is the output's only producer, so a tone and a voice can run together.
type MixFlags struct {
	Tone    bool    `flag:"" help:"Mix a test tone into the output endpoint"`
	ToneHz  float64 `flag:"" default:"440" help:"Test tone frequency in Hz"`
	Capture bool    `flag:"" help:"Pass a host capture device through to the output endpoint"`
	Source  string  `flag:"" placeholder:"NAME" help:"Host capture device to pass through (implies --capture)"`
	Volume  float32 `flag:"" default:"0.2" help:"Passthrough volume, 0 to 0.6"`
}

// startMix builds the mixer, connects the capture source if asked and runs
// the mixer until ctx ends.
func (s *session) startMix(ctx context.Context, f MixFlags) error {
	var tone *audio.Tone
	if f.Tone {
		t, err := audio.NewTone(f.ToneHz, s.format.SampleRate, s.channels(), 0.5)
		if err != nil {
			return fmt.Errorf("failed to create tone: %w", err)
		}
		tone = t
	}

	mixer, err := audio.NewMixer(audio.MixerConfig{
		Sink:       s.dev.Output(),
		Channels:   s.channels(),
		SampleRate: s.format.SampleRate,
		Tone:       tone,
		Clock:      s.clock,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mixer: %w", err)
	}
	s.mixer = mixer

	if v := mixer.SetPassthroughVolume(f.Volume); v != f.Volume {
		slog.Warn("passthrough volume clamped", "requested", f.Volume, "volume", v)
	}

	if f.Capture || f.Source != "" {
		if err := s.connectSource(ctx, f.Source); err != nil {
			return err
		}
	}

	s.wg.Go(func() {
		if err := mixer.Run(ctx); err != nil {
			slog.Error("mixer error", "error", err)
		}
	})

	return nil
}

// connectSource bridges a host capture device into the mixer's voice input
// and switches passthrough on. An empty name selects the system default.
func (s *session) connectSource(ctx context.Context, name string) error {
	bridge := audio.NewDevice(audio.DeviceConfig{
		CaptureChannels: s.channels(),
		SampleRate:      int(s.format.SampleRate),
		DeviceName:      name,
	}, slog.Default())

	if err := bridge.CaptureInto(ctx, s.mixer.Passthrough()); err != nil {
		return fmt.Errorf("failed to connect audio source: %w", err)
	}
	s.bridges = append(s.bridges, bridge)
	s.source = bridge

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	s.mixer.SetPassthrough(true)
	slog.Info("audio source connected", "source", cmp.Or(name, "default"), "volume", s.mixer.PassthroughVolume())

	return nil
}

// passthroughKnob is nil until a source is connected.
func (s *session) passthroughKnob() uictl.Knob {
	if s.source == nil {
		return nil
	}

	return s.mixer.PassthroughKnob()
}

// bridgePlayback plays the input endpoint on the default host playback
// device.
func (s *session) bridgePlayback(ctx context.Context) error {
	bridge := audio.NewDevice(audio.DeviceConfig{
		PlaybackChannels: s.channels(),
		SampleRate:       int(s.format.SampleRate),
	}, slog.Default())

	if err := bridge.PlaybackFrom(ctx, s.dev.Input()); err != nil {
		return fmt.Errorf("failed to start audio playback: %w", err)
	}
	s.bridges = append(s.bridges, bridge)

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

// close releases host bridges, waits for background work and stops the
// device.
func (s *session) close() {
	ctx := context.Background()

	for _, b := range s.bridges {
		if err := b.Stop(ctx); err != nil {
			slog.Error("Failed to stop audio device", "error", err)
		}
		b.Dealloc(ctx)
		c := b.Counters()
		slog.Debug("Audio device deallocated", "frames", c.Frames, "errors", c.Errors)
	}

	s.wg.Wait()

	if err := s.dev.Close(); err != nil {
		slog.Error("Failed to stop loopback device", "error", err)
	}
}
