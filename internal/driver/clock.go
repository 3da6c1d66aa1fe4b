package driver

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// TimeStamp pairs a sample time with the host time at which it occurs.
// Seed changes whenever the timeline is re-anchored, so consumers know
// earlier timestamps no longer line up.
type TimeStamp struct {
	SampleTime float64   `json:"sample_time"`
	HostTime   time.Time `json:"host_time"`
	Seed       uint64    `json:"seed"`
}

// Clock derives monotonic sample timestamps from a host clock. It publishes
// a zero timestamp once per period of periodFrames frames.
type Clock struct {
	host         clockwork.Clock
	periodFrames uint64

	rate   atomic.Uint64 // math.Float64bits
	anchor atomic.Pointer[time.Time]
	seed   atomic.Uint64
}

// NewClock creates a stopped clock.
func NewClock(host clockwork.Clock, sampleRate float64, periodFrames int) (*Clock, error) {
	if host == nil {
		host = clockwork.NewRealClock()
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}

	if periodFrames <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d frames", periodFrames)
	}

	c := &Clock{host: host, periodFrames: uint64(periodFrames)}
	c.rate.Store(math.Float64bits(sampleRate))

	return c, nil
}

// Host returns the underlying host clock.
func (c *Clock) Host() clockwork.Clock {
	return c.host
}

// SampleRate returns the current nominal rate.
func (c *Clock) SampleRate() float64 {
	return math.Float64frombits(c.rate.Load())
}

// SetSampleRate changes the nominal rate and invalidates earlier timestamps.
func (c *Clock) SetSampleRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", rate)
	}

	if c.rate.Swap(math.Float64bits(rate)) != math.Float64bits(rate) {
		c.seed.Add(1)
	}

	return nil
}

// Start anchors the timeline at the current host time.
func (c *Clock) Start() {
	now := c.host.Now()
	c.anchor.Store(&now)
	c.seed.Add(1)
}

// Stop detaches the timeline; timestamps fail until the next Start.
func (c *Clock) Stop() {
	c.anchor.Store(nil)
}

// Running reports whether the clock is anchored.
func (c *Clock) Running() bool {
	return c.anchor.Load() != nil
}

// Period returns the host duration of one period.
func (c *Clock) Period() time.Duration {
	return time.Duration(float64(c.periodFrames) * float64(time.Second) / c.SampleRate())
}

// ZeroTimeStamp returns the most recent period boundary.
func (c *Clock) ZeroTimeStamp() (TimeStamp, error) {
	anchor := c.anchor.Load()
	if anchor == nil {
		return TimeStamp{}, fmt.Errorf("%w: clock is stopped", ErrInvalidState)
	}

	period := c.Period()
	elapsed := c.host.Since(*anchor)
	n := uint64(0)
	if elapsed > 0 && period > 0 {
		n = uint64(elapsed / period)
	}

	return TimeStamp{
		SampleTime: float64(n * c.periodFrames),
		HostTime:   anchor.Add(time.Duration(n) * period),
		Seed:       c.seed.Load(),
	}, nil
}

// SamplePosition returns the number of frames elapsed since the anchor.
func (c *Clock) SamplePosition() (uint64, error) {
	anchor := c.anchor.Load()
	if anchor == nil {
		return 0, fmt.Errorf("%w: clock is stopped", ErrInvalidState)
	}

	elapsed := c.host.Since(*anchor)
	if elapsed <= 0 {
		return 0, nil
	}

	return uint64(float64(elapsed) * c.SampleRate() / float64(time.Second)), nil
}
