// Package driver implements the data path of a virtual loopback audio
// device: a shared ring buffer between an output and an input stream, a
// sample clock, and the format negotiation that guards both.
package driver

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

// DefaultRingFrames is the ring capacity used when Options leaves it unset.
const DefaultRingFrames = 16384

// Options configures a Device. The values are copied at construction and
// never change afterwards.
type Options struct {
	Identity Identity

	// RingFrames is the ring capacity and clock period in frames.
	RingFrames int

	// SampleRate is the default nominal rate.
	SampleRate float64

	// Clock is the host clock; nil selects the real clock.
	Clock clockwork.Clock

	Logger *slog.Logger
}

// Stats is a point-in-time view of a device.
type Stats struct {
	Ring   RingStats         `json:"ring"`
	Input  string            `json:"input"`
	Output string            `json:"output"`
	Format *FormatDescriptor `json:"format,omitempty"`
}

// Device is one branded loopback device. Several devices can live in one
// process, each with its own identity and ring.
type Device struct {
	identity   Identity
	negotiator *Negotiator
	ring       *RingBuffer
	clock      *Clock
	logger     *slog.Logger

	input  *Endpoint
	output *Endpoint

	// mu serializes the control path (negotiate, start, stop). The data path
	// never takes it.
	mu     sync.Mutex
	format atomic.Pointer[FormatDescriptor]
}

// New validates opts and builds a stopped device.
func New(opts Options) (*Device, error) {
	if err := opts.Identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}

	if opts.RingFrames == 0 {
		opts.RingFrames = DefaultRingFrames
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	negotiator, err := NewNegotiator(opts.Identity.Channels, opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create negotiator: %w", err)
	}

	ring, err := NewRingBuffer(opts.RingFrames, opts.Identity.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create ring buffer: %w", err)
	}

	clock, err := NewClock(opts.Clock, negotiator.DefaultRate(), opts.RingFrames)
	if err != nil {
		return nil, fmt.Errorf("failed to create clock: %w", err)
	}

	d := &Device{
		identity:   opts.Identity,
		negotiator: negotiator,
		ring:       ring,
		clock:      clock,
		logger:     opts.Logger.With("device", opts.Identity.DeviceUID()),
	}
	d.input = newEndpoint(Input, d)
	d.output = newEndpoint(Output, d)

	return d, nil
}

// Identity returns the static identity record.
func (d *Device) Identity() Identity {
	return d.identity
}

// Negotiator returns the device's format negotiator.
func (d *Device) Negotiator() *Negotiator {
	return d.negotiator
}

// Input returns the endpoint applications record from.
func (d *Device) Input() *Endpoint {
	return d.input
}

// Output returns the endpoint applications play into.
func (d *Device) Output() *Endpoint {
	return d.output
}

// Endpoint returns the endpoint for dir.
func (d *Device) Endpoint(dir Direction) *Endpoint {
	if dir == Input {
		return d.input
	}

	return d.output
}

// Ring exposes the shared ring buffer.
func (d *Device) Ring() *RingBuffer {
	return d.ring
}

// Clock exposes the device sample clock.
func (d *Device) Clock() *Clock {
	return d.clock
}

// Format returns the device format, if one has been negotiated.
func (d *Device) Format() (FormatDescriptor, bool) {
	f := d.format.Load()
	if f == nil {
		return FormatDescriptor{}, false
	}

	return *f, true
}

// Negotiate negotiates req on both endpoints.
func (d *Device) Negotiate(req FormatDescriptor) (FormatDescriptor, error) {
	f, err := d.output.Negotiate(req)
	if err != nil {
		return FormatDescriptor{}, err
	}

	return d.input.Negotiate(f)
}

// IsRunning reports whether either endpoint is running.
func (d *Device) IsRunning() bool {
	return d.input.State() == Running || d.output.State() == Running
}

// ZeroTimeStamp returns the clock's latest period boundary.
func (d *Device) ZeroTimeStamp() (TimeStamp, error) {
	return d.clock.ZeroTimeStamp()
}

// Stats snapshots counters and states.
func (d *Device) Stats() Stats {
	s := Stats{
		Ring:   d.ring.Stats(),
		Input:  d.input.State().String(),
		Output: d.output.State().String(),
	}
	if f, ok := d.Format(); ok {
		s.Format = &f
	}

	return s
}

// Close stops both endpoints.
func (d *Device) Close() error {
	if err := d.output.Stop(); err != nil {
		return err
	}

	return d.input.Stop()
}

func (d *Device) negotiate(e *Endpoint, req FormatDescriptor) (FormatDescriptor, error) {
	f, err := d.negotiator.Negotiate(req)
	if err != nil {
		d.logger.Debug("format rejected", "direction", e.dir, "requested", req, "error", err)
		return FormatDescriptor{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cur := d.format.Load(); cur != nil && *cur != f && d.IsRunning() {
		return FormatDescriptor{}, fmt.Errorf("%w: cannot change format from %s to %s while streaming",
			ErrInvalidState, cur, f)
	}

	if err := d.clock.SetSampleRate(f.SampleRate); err != nil {
		return FormatDescriptor{}, fmt.Errorf("failed to set clock rate: %w", err)
	}

	d.format.Store(&f)
	e.format.Store(&f)

	d.logger.Debug("format negotiated", "direction", e.dir, "format", f)

	return f, nil
}

func (d *Device) start(e *Endpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e.State() == Running {
		return nil
	}

	ef := e.format.Load()
	if ef == nil {
		return fmt.Errorf("%w: %s format not negotiated", ErrInvalidState, e.dir)
	}

	if df := d.format.Load(); df == nil || *df != *ef {
		return fmt.Errorf("%w: %s format is stale, renegotiate", ErrInvalidState, e.dir)
	}

	if !d.IsRunning() {
		if n := d.ring.Discard(); n > 0 {
			d.logger.Debug("discarded stale frames", "frames", n)
		}
		d.clock.Start()
	}

	e.state.Store(int32(Running))
	d.logger.Info("stream started", "direction", e.dir, "format", *ef)

	return nil
}

func (d *Device) stop(e *Endpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e.State() == Stopped {
		return nil
	}

	e.state.Store(int32(Stopped))

	if !d.IsRunning() {
		d.clock.Stop()
	}

	d.logger.Info("stream stopped", "direction", e.dir)

	return nil
}
