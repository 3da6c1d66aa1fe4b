package audio

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/alkime/sokuji/pkg/collections"
	"github.com/gen2brain/malgo"
)

// ErrDeviceNotFound is returned when no host device matches
// DeviceConfig.DeviceName.
var ErrDeviceNotFound = errors.New("audio device not found")

// FrameSink accepts interleaved float32 frames. The loopback output
// endpoint is one.
type FrameSink interface {
	Write(samples []float32) (int, error)
}

// FrameSource yields interleaved float32 frames. The loopback input
// endpoint is one.
type FrameSource interface {
	Read(dst []float32) (int, error)
}

// Device bridges one host audio device to the loopback. A capture bridge
// pushes what the host records into a FrameSink; a playback bridge pulls
// what the host plays from a FrameSource.
type Device interface {
	// EnumerateDevices lists host capture and playback devices.
	// It ignores any device configuration passed in.
	EnumerateDevices(ctx context.Context) ([]Info, error)

	// CaptureInto allocates a host capture device whose callback writes
	// every period into sink once Start is called.
	CaptureInto(ctx context.Context, sink FrameSink) error

	// PlaybackFrom allocates a host playback device whose callback reads
	// every period from src once Start is called. Missing frames play as
	// silence.
	PlaybackFrom(ctx context.Context, src FrameSource) error

	Start(ctx context.Context) error
	// Stop stops the host device. It is a no-op once deallocated.
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
	IsStarted() bool

	// Counters returns frames moved and callbacks that hit an error.
	Counters() BridgeCounters

	// Dealloc frees the host device and context.
	Dealloc(ctx context.Context)
}

// BridgeCounters is updated from the real-time callback.
type BridgeCounters struct {
	Frames uint64
	Errors uint64
}

type counters struct {
	frames atomic.Uint64
	errors atomic.Uint64
}

func (c *counters) snapshot() BridgeCounters {
	return BridgeCounters{Frames: c.frames.Load(), Errors: c.errors.Load()}
}

type device struct {
	conf   DeviceConfig
	logger *slog.Logger
	stats  counters

	mgCtx    *malgo.AllocatedContext
	mgDevice *malgo.Device
}

// NewDevice returns an unallocated bridge.
func NewDevice(conf DeviceConfig, logger *slog.Logger) Device {
	if logger == nil {
		logger = slog.Default()
	}

	return &device{conf: conf.WithDefaults(), logger: logger}
}

func (d *device) EnumerateDevices(ctx context.Context) ([]Info, error) {
	devCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer d.uninitializeContext(devCtx)

	captureDevices, err := devCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture devices: %w", err)
	}

	playbackDevices, err := devCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to get playback devices: %w", err)
	}

	infos := collections.Apply(captureDevices, infoFor(KindCapture))

	return append(infos, collections.Apply(playbackDevices, infoFor(KindPlayback))...), nil
}

func (d *device) CaptureInto(ctx context.Context, sink FrameSink) error {
	if sink == nil {
		return errors.New("frame sink is nil. unable to allocate capture device")
	}

	proc := captureProc(sink, d.conf.CaptureChannels, d.conf.PeriodFrames, &d.stats)
	if err := d.alloc(malgo.Capture, proc); err != nil {
		return fmt.Errorf("failed to create malgo capture device: %w", err)
	}

	return nil
}

func (d *device) PlaybackFrom(ctx context.Context, src FrameSource) error {
	if src == nil {
		return errors.New("frame source is nil. unable to allocate playback device")
	}

	proc := playbackProc(src, d.conf.PlaybackChannels, d.conf.PeriodFrames, &d.stats)
	if err := d.alloc(malgo.Playback, proc); err != nil {
		return fmt.Errorf("failed to create malgo playback device: %w", err)
	}

	return nil
}

func (d *device) Start(ctx context.Context) error {
	if d.mgDevice == nil {
		return errors.New("device nil. allocate it with CaptureInto or PlaybackFrom first")
	}

	if d.mgDevice.IsStarted() {
		return nil
	}

	if err := d.mgDevice.Start(); err != nil {
		return fmt.Errorf("failed to start malgo device: %w", err)
	}

	return nil
}

func (d *device) Stop(ctx context.Context) error {
	if d.mgDevice == nil {
		return nil
	}

	if err := d.mgDevice.Stop(); err != nil {
		return fmt.Errorf("failed to stop malgo device: %w", err)
	}

	c := d.stats.snapshot()
	d.logger.Debug("bridge stopped", "frames", c.Frames, "callback_errors", c.Errors)

	return nil
}

func (d *device) Toggle(ctx context.Context) error {
	if d.mgDevice == nil {
		return errors.New("device nil. allocate it with CaptureInto or PlaybackFrom first")
	}

	if d.mgDevice.IsStarted() {
		return d.Stop(ctx)
	}

	return d.Start(ctx)
}

func (d *device) IsStarted() bool {
	if d.mgDevice == nil {
		return false
	}

	return d.mgDevice.IsStarted()
}

func (d *device) Counters() BridgeCounters {
	return d.stats.snapshot()
}

func (d *device) Dealloc(ctx context.Context) {
	if d.mgDevice == nil {
		return
	}

	d.mgDevice.Uninit()
	d.uninitializeContext(d.mgCtx)
	d.mgDevice = nil
	d.mgCtx = nil
}

func (d *device) alloc(devType malgo.DeviceType, proc malgo.DataProc) error {
	if d.mgDevice != nil {
		return errors.New("device already allocated")
	}

	if err := d.conf.Validate(devType); err != nil {
		return fmt.Errorf("invalid device config: %w", err)
	}

	mgCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	var deviceID unsafe.Pointer
	if d.conf.DeviceName != "" {
		deviceID, err = lookupDevice(mgCtx, devType, d.conf.DeviceName)
		if err != nil {
			d.uninitializeContext(mgCtx)
			return err
		}
	}

	devCnf := malgo.DefaultDeviceConfig(devType)
	devCnf.SampleRate = uint32(d.conf.SampleRate)
	devCnf.PeriodSizeInFrames = uint32(d.conf.PeriodFrames)

	switch devType { //nolint:exhaustive // validated above
	case malgo.Capture:
		devCnf.Capture.Format = d.conf.Format
		devCnf.Capture.Channels = uint32(d.conf.CaptureChannels)
		devCnf.Capture.DeviceID = deviceID
	case malgo.Playback:
		devCnf.Playback.Format = d.conf.Format
		devCnf.Playback.Channels = uint32(d.conf.PlaybackChannels)
		devCnf.Playback.DeviceID = deviceID
	}

	mgDevice, err := malgo.InitDevice(mgCtx.Context, devCnf, malgo.DeviceCallbacks{Data: proc})
	if err != nil {
		d.uninitializeContext(mgCtx)
		return fmt.Errorf("failed to initialize malgo device: %w", err)
	}

	d.mgCtx, d.mgDevice = mgCtx, mgDevice
	d.logger.Debug("bridge allocated",
		"type", devType,
		"device", cmp.Or(d.conf.DeviceName, "default"),
		"sample_rate", d.conf.SampleRate,
		"period_frames", d.conf.PeriodFrames)

	return nil
}

// lookupDevice returns the malgo ID of the first host device of devType
// whose name matches name. A nil ID selects the default device.
func lookupDevice(mgCtx *malgo.AllocatedContext, devType malgo.DeviceType, name string) (unsafe.Pointer, error) {
	infos, err := mgCtx.Devices(devType)
	if err != nil {
		return nil, fmt.Errorf("failed to list host devices: %w", err)
	}

	for _, info := range infos {
		if MatchesName(info.Name(), name) {
			return info.ID.Pointer(), nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

func (d *device) uninitializeContext(mgCtx *malgo.AllocatedContext) {
	if mgCtx == nil {
		return
	}

	if err := mgCtx.Uninit(); err != nil {
		d.logger.Error("failed to uninitialize malgo context", "error", err)
	}
	mgCtx.Free()
}

// captureProc decodes each period and writes it to sink. The scratch buffer
// is sized for one period up front so the callback normally allocates
// nothing. Errors are counted, never returned: overruns are already
// accounted for by the ring and a stopped endpoint just drops the period.
func captureProc(sink FrameSink, channels, periodFrames int, c *counters) malgo.DataProc {
	scratch := make([]float32, 0, periodFrames*channels)

	return func(_, input []byte, framecount uint32) {
		n := int(framecount) * channels
		scratch = BytesToFloat32(scratch, input[:min(len(input), n*4)])

		frames, err := sink.Write(scratch)
		c.frames.Add(uint64(frames))
		if err != nil {
			c.errors.Add(1)
		}
	}
}

// playbackProc fills each period from src and pads whatever src could not
// supply with silence.
func playbackProc(src FrameSource, channels, periodFrames int, c *counters) malgo.DataProc {
	scratch := make([]float32, periodFrames*channels)

	return func(output, _ []byte, framecount uint32) {
		n := int(framecount) * channels
		if cap(scratch) < n {
			scratch = make([]float32, n)
		}
		buf := scratch[:n]

		frames, err := src.Read(buf)
		if err != nil {
			c.errors.Add(1)
		}
		c.frames.Add(uint64(frames))

		clear(buf[frames*channels:])
		Float32ToBytes(output, buf)
	}
}

// Kind tells whether a host device records or plays.
type Kind string

const (
	KindCapture  Kind = "capture"
	KindPlayback Kind = "playback"
)

// Info describes one host device.
type Info struct {
	Name        string
	Kind        Kind
	IsDefault   bool
	FormatCount int
	Formats     []string
}

func infoFor(kind Kind) func(malgo.DeviceInfo) Info {
	return func(mdi malgo.DeviceInfo) Info {
		formats := make([]string, len(mdi.Formats))
		for i, mf := range mdi.Formats {
			formats[i] = fmt.Sprintf("(SampleSizeBytes: %d, Channels: %d, SampleRate: %d)",
				malgo.SampleSizeInBytes(mf.Format),
				mf.Channels, mf.SampleRate)
		}

		return Info{
			Name:        mdi.Name(),
			Kind:        kind,
			IsDefault:   mdi.IsDefault != 0,
			FormatCount: int(mdi.FormatCount),
			Formats:     formats,
		}
	}
}

// MatchesName reports whether the host device name have refers to want.
// Case, spaces, underscores and hyphens are ignored, so "Sokuji Virtual
// Audio" matches both "SokujiVirtualAudio" and "sokuji_virtual_audio.monitor".
func MatchesName(have, want string) bool {
	w := normalizeName(want)
	if w == "" {
		return false
	}

	return strings.Contains(normalizeName(have), w)
}

var nameSeparators = strings.NewReplacer(" ", "", "_", "", "-", "")

func normalizeName(s string) string {
	return nameSeparators.Replace(strings.ToLower(s))
}

// FindDevices returns the infos whose name matches name. An installed
// loopback device shows up here under its identity name.
func FindDevices(infos []Info, name string) []Info {
	return collections.Filter(infos, func(info Info) bool {
		return MatchesName(info.Name, name)
	})
}

// SystemSources returns the capture devices that can feed the loopback:
// every capture device except those matching one of exclude, which keeps
// the loopback from being offered as its own source.
func SystemSources(infos []Info, exclude ...string) []Info {
	return collections.Filter(infos, func(info Info) bool {
		if info.Kind != KindCapture {
			return false
		}

		for _, name := range exclude {
			if MatchesName(info.Name, name) {
				return false
			}
		}

		return true
	})
}
