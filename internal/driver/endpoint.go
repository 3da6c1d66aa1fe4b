package driver

import (
	"fmt"
	"sync/atomic"
)

// Direction tells which side of the loopback an endpoint serves.
type Direction int

const (
	// Output is the stream applications play into.
	Output Direction = iota
	// Input is the stream applications record from.
	Input
)

func (d Direction) String() string {
	switch d {
	case Output:
		return "output"
	case Input:
		return "input"
	default:
		return "unknown"
	}
}

// ParseDirection maps "input" or "output" to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "output":
		return Output, nil
	case "input":
		return Input, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// StreamState is the run state of an endpoint.
type StreamState int32

const (
	// Stopped endpoints reject Read and Write with ErrInvalidState.
	Stopped StreamState = iota
	// Running endpoints move frames through the ring.
	Running
)

func (s StreamState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Endpoint is one side of the loopback. Read and Write are safe to call from
// a real-time callback: they only touch atomics and the ring buffer.
type Endpoint struct {
	dir    Direction
	dev    *Device
	state  atomic.Int32
	format atomic.Pointer[FormatDescriptor]
}

func newEndpoint(dir Direction, dev *Device) *Endpoint {
	return &Endpoint{dir: dir, dev: dev}
}

// Direction returns the endpoint direction.
func (e *Endpoint) Direction() Direction {
	return e.dir
}

// State returns the current run state.
func (e *Endpoint) State() StreamState {
	return StreamState(e.state.Load())
}

// Format returns the negotiated format, if any.
func (e *Endpoint) Format() (FormatDescriptor, bool) {
	f := e.format.Load()
	if f == nil {
		return FormatDescriptor{}, false
	}

	return *f, true
}

// Negotiate validates req and adopts the canonical format for this endpoint
// and the device.
func (e *Endpoint) Negotiate(req FormatDescriptor) (FormatDescriptor, error) {
	return e.dev.negotiate(e, req)
}

// Start moves the endpoint to Running. Starting a running endpoint is a no-op.
func (e *Endpoint) Start() error {
	return e.dev.start(e)
}

// Stop moves the endpoint to Stopped. It is safe to call concurrently with
// an in-flight Read or Write, and stopping a stopped endpoint is a no-op.
func (e *Endpoint) Stop() error {
	return e.dev.stop(e)
}

// Write stores interleaved frames for the input side to read. A non-nil error
// wrapping ErrOverrun still means every frame was accepted.
func (e *Endpoint) Write(samples []float32) (int, error) {
	if e.dir != Output {
		return 0, fmt.Errorf("%w: write on %s endpoint", ErrInvalidState, e.dir)
	}

	if e.State() != Running {
		return 0, fmt.Errorf("%w: %s endpoint is stopped", ErrInvalidState, e.dir)
	}

	return e.dev.ring.Write(samples)
}

// Read returns frames written by the output side. A short read returns an
// error wrapping ErrUnderrun together with the frames that were available.
func (e *Endpoint) Read(dst []float32) (int, error) {
	if e.dir != Input {
		return 0, fmt.Errorf("%w: read on %s endpoint", ErrInvalidState, e.dir)
	}

	if e.State() != Running {
		return 0, fmt.Errorf("%w: %s endpoint is stopped", ErrInvalidState, e.dir)
	}

	return e.dev.ring.Read(dst)
}
