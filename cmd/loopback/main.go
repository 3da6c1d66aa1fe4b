package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/alkime/sokuji/internal/audio"
	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/internal/tui/monitor"
	"github.com/alkime/sokuji/pkg/collections"
	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"
)

// CLI defines the loopback command structure.
type CLI struct {
	Globals

	Monitor   MonitorCmd   `cmd:"" default:"withargs" help:"Live terminal view of the loopback device"`
	Identity  IdentityCmd  `cmd:"" help:"Print the device identity"`
	Formats   FormatsCmd   `cmd:"" help:"List supported stream formats"`
	Negotiate NegotiateCmd `cmd:"" help:"Check whether a format would be accepted"`
	Selftest  SelftestCmd  `cmd:"" help:"Play a test tone through the loopback and verify it comes back"`
	Devices   DevicesCmd   `cmd:"" help:"List host audio devices"`
	Record    RecordCmd    `cmd:"" help:"Record the loopback input to an MP3 file"`
}

// Globals are flags shared by every command.
type Globals struct {
	Debug        bool    `flag:"" help:"Enable debug logging"`
	IdentityFile string  `flag:"" type:"existingfile" env:"IDENTITY_FILE" help:"YAML identity profile"`
	SampleRate   float64 `flag:"" help:"Device default sample rate (overrides SAMPLE_RATE)"`
}

// IdentityCmd prints the device identity.
type IdentityCmd struct{}

// Run executes the identity command.
func (c *IdentityCmd) Run(g *Globals) error {
	dev, err := g.openDevice()
	if err != nil {
		return err
	}

	id := dev.Identity()

	out, err := yaml.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}

	fmt.Print(string(out))
	fmt.Printf("device_uid: %s\n", id.DeviceUID())
	fmt.Printf("model_uid: %s\n", id.ModelUID())

	return nil
}

// FormatsCmd lists supported stream formats.
type FormatsCmd struct{}

// Run executes the formats command.
//
//nolint:unparam // error return required by Kong interface
func (c *FormatsCmd) Run(g *Globals) error {
	dev, err := g.openDevice()
	if err != nil {
		return err
	}

	n := dev.Negotiator()
	for _, f := range n.Supported() {
		marker := " "
		if f.SampleRate == n.DefaultRate() {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, f)
	}

	return nil
}

// NegotiateCmd checks a requested format.
type NegotiateCmd struct {
	SampleRate    float64 `arg:"" optional:"" help:"Sample rate in Hz (0 selects the default)"`
	Channels      int     `flag:"" default:"2" help:"Channel count"`
	BitsPerSample int     `flag:"" default:"32" help:"Bits per sample"`
}

// Run executes the negotiate command.
func (c *NegotiateCmd) Run(g *Globals) error {
	dev, err := g.openDevice()
	if err != nil {
		return err
	}

	f, err := dev.Negotiate(driver.FormatDescriptor{
		SampleRate:    c.SampleRate,
		Channels:      c.Channels,
		BitsPerSample: c.BitsPerSample,
	})
	if err != nil {
		return fmt.Errorf("format rejected: %w", err)
	}

	fmt.Printf("accepted: %s (%d bytes per frame)\n", f, f.BytesPerFrame())

	return nil
}

// DevicesCmd lists host audio devices.
type DevicesCmd struct {
	Kind         string `flag:"" enum:"all,capture,playback" default:"all" help:"Device kind to list"`
	Sources      bool   `flag:"" help:"List only capture devices that can be passed through"`
	FindIdentity bool   `flag:"" help:"Check that the loopback device named by the identity is installed"`
}

// Run executes the devices command.
func (c *DevicesCmd) Run(g *Globals) error {
	slog.Info("Enumerating audio devices...")

	adev := audio.NewDevice(audio.DeviceConfig{}, slog.Default())
	devices, err := adev.EnumerateDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	if c.FindIdentity || c.Sources {
		dev, err := g.openDevice()
		if err != nil {
			return err
		}
		id := dev.Identity()

		if c.FindIdentity {
			devices = audio.FindDevices(devices, id.DeviceName)
			if len(devices) == 0 {
				return fmt.Errorf("%q is not installed: %w", id.DeviceName, audio.ErrDeviceNotFound)
			}
			slog.Info("loopback device installed", "name", id.DeviceName, "matches", len(devices))
		}

		if c.Sources {
			devices = audio.SystemSources(devices, id.DeviceName, id.Manufacturer)
		}
	}

	if c.Kind != "all" {
		devices = collections.Filter(devices, func(d audio.Info) bool {
			return d.Kind == audio.Kind(c.Kind)
		})
	}

	for _, dev := range devices {
		slog.Info("Audio Device",
			"name", dev.Name,
			"kind", dev.Kind,
			"isDefault", dev.IsDefault,
			"formatCount", dev.FormatCount,
			"formats", dev.Formats,
		)
	}

	return nil
}

// SelftestCmd plays a tone into the output endpoint and checks that the
// input endpoint returns it.
type SelftestCmd struct {
	Duration time.Duration `flag:"" default:"1s" help:"How long to run the tone"`
	Freq     float64       `flag:"" default:"440" help:"Tone frequency in Hz"`
}

// Run executes the selftest command.
func (c *SelftestCmd) Run(g *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Duration)
	defer cancel()

	s, err := g.startSession()
	if err != nil {
		return err
	}
	defer s.close()

	packets, err := s.tap.Subscribe(64, 0)
	if err != nil {
		return err
	}

	meter := audio.NewLevelMeter(s.channels(), int(s.format.SampleRate)/10)

	if err := s.startMix(ctx, MixFlags{Tone: true, ToneHz: c.Freq}); err != nil {
		return err
	}

	tapErr := make(chan error, 1)
	go func() { tapErr <- s.tap.Run(ctx) }()

	var frames int
	for packet := range packets {
		meter.Write(packet)
		frames += len(packet) / s.channels()
	}

	if err := <-tapErr; err != nil {
		return err
	}

	stats := s.dev.Stats().Ring
	slog.Info("selftest finished",
		"format", s.format.String(),
		"frames", frames,
		"rms", meter.RMS(),
		"overruns", stats.Overruns,
		"underruns", stats.Underruns,
		"contended_writes", stats.ContendedWrites,
	)

	if frames == 0 {
		return errors.New("selftest failed: no frames came back through the loopback")
	}

	if meter.RMS() == 0 {
		return errors.New("selftest failed: loopback returned silence")
	}

	fmt.Println("selftest passed")

	return nil
}

// RecordCmd records the loopback input.
type RecordCmd struct {
	MixFlags

	Output      string        `arg:"" help:"Output MP3 path"`
	MaxDuration time.Duration `flag:"" default:"1h" help:"Max recording duration"`
	MaxBytes    int64         `flag:"" default:"268435456" help:"Max file size (256MB)"`
}

// Run executes the record command.
func (c *RecordCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := g.startSession()
	if err != nil {
		return err
	}
	defer s.close()

	recorder, err := audio.NewRecorder(audio.RecorderConfig{
		OutputPath:  c.Output,
		SampleRate:  int(s.format.SampleRate),
		Channels:    s.channels(),
		MaxDuration: c.MaxDuration,
		MaxBytes:    c.MaxBytes,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create audio recorder: %w", err)
	}

	packets, err := s.tap.Subscribe(64, time.Second)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.startMix(ctx, c.MixFlags); err != nil {
		return err
	}

	s.wg.Go(func() {
		if err := s.tap.Run(ctx); err != nil {
			slog.Error("tap error", "error", err)
		}
	})

	slog.Info("recording", "path", c.Output, "format", s.format.String())

	err = recorder.Record(ctx, packets)
	cancel()

	if errors.Is(err, audio.ErrMaxDurationReached) || errors.Is(err, audio.ErrMaxBytesReached) {
		fmt.Printf("\nstopped: %v\n", err)
		return nil
	}

	return err
}

// MonitorCmd runs the terminal monitor.
type MonitorCmd struct {
	MixFlags

	Playback bool `flag:"" help:"Play the loopback input on the default host playback device"`
}

// Run executes the monitor command.
//
//nolint:funlen // CLI command with multiple setup steps
func (c *MonitorCmd) Run(g *Globals) error {
	if c.Playback {
		// the host playback bridge drains the input endpoint itself, so a
		// tap would compete with it for frames
		return c.runPlayback(g)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// TUI owns the terminal; keep logs out of it
	slog.SetDefault(slog.New(slog.DiscardHandler))

	s, err := g.startSession()
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.startMix(ctx, c.MixFlags); err != nil {
		return err
	}

	packets, err := s.tap.Subscribe(16, 0)
	if err != nil {
		return err
	}

	meter := audio.NewLevelMeter(s.channels(), int(s.format.SampleRate)/20)
	s.wg.Go(func() {
		for packet := range packets {
			meter.Write(packet)
		}
	})

	s.wg.Go(func() { _ = s.tap.Run(ctx) })

	controls := monitor.DeviceControls(s.dev, meter)
	controls.Passthrough = s.passthroughKnob()

	p := tea.NewProgram(monitor.New(monitor.DeviceHeader(s.dev), controls, cancel))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to start TUI: %w", err)
	}

	cancel()
	s.wg.Wait()

	fmt.Println("\nfinished. bye!")

	return nil
}

func (c *MonitorCmd) runPlayback(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := g.startSession()
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.startMix(ctx, c.MixFlags); err != nil {
		return err
	}

	if err := s.bridgePlayback(ctx); err != nil {
		return err
	}

	slog.Info("playing loopback input on host device; press ctrl+c to stop")
	<-ctx.Done()

	return nil
}

func main() {
	cli := &CLI{} //nolint:exhaustruct // Kong fills in command fields
	ctx := kong.Parse(cli,
		kong.Name("loopback"),
		kong.Description("Drive and inspect a Sokuji virtual loopback device."),
	)

	// Set up text-based logger for CLI output
	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	//nolint:exhaustruct // Using default values for other HandlerOptions fields
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
	os.Exit(0)
}
