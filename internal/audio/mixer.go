package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/pkg/uictl"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultPassthroughVolume is the gain applied to the real voice when
	// passthrough is switched on.
	DefaultPassthroughVolume = 0.2

	// MaxPassthroughVolume caps the real voice so it stays under the mix.
	MaxPassthroughVolume = 0.6

	// DefaultMixInterval is how often the mixer writes a chunk.
	DefaultMixInterval = 10 * time.Millisecond
)

// MixerConfig wires a Mixer to the loopback output.
type MixerConfig struct {
	Sink       FrameSink
	Channels   int
	SampleRate float64

	// Tone, if set, is the program audio the voice is mixed under.
	Tone *Tone

	// PassthroughFrames sizes the voice buffer. Zero means half a second.
	PassthroughFrames int

	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Mixer is the only producer on the loopback output. It sums the optional
// tone with the real voice arriving on Passthrough, scaled by the
// passthrough volume, and writes the result paced by the host clock.
//
// Passthrough is written from the capture callback and read only by Run,
// so both sides of the voice buffer keep a single owner.
type Mixer struct {
	conf  MixerConfig
	voice *driver.RingBuffer

	volume  atomic.Uint32
	enabled atomic.Bool

	mix     []float32
	scratch []float32
}

// NewMixer validates conf. Passthrough starts disabled at
// DefaultPassthroughVolume.
func NewMixer(conf MixerConfig) (*Mixer, error) {
	if conf.Sink == nil {
		return nil, errors.New("mixer needs a frame sink")
	}

	if conf.Channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", conf.Channels)
	}

	if conf.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", conf.SampleRate)
	}

	if conf.PassthroughFrames <= 0 {
		conf.PassthroughFrames = int(conf.SampleRate / 2)
	}

	if conf.Interval <= 0 {
		conf.Interval = DefaultMixInterval
	}

	if conf.Clock == nil {
		conf.Clock = clockwork.NewRealClock()
	}

	if conf.Logger == nil {
		conf.Logger = slog.Default()
	}

	voice, err := driver.NewRingBuffer(conf.PassthroughFrames, conf.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create passthrough buffer: %w", err)
	}

	m := &Mixer{conf: conf, voice: voice}
	m.volume.Store(math.Float32bits(DefaultPassthroughVolume))

	return m, nil
}

// Passthrough is where the real voice goes in, usually a capture bridge.
// Only one producer may write to it.
func (m *Mixer) Passthrough() FrameSink {
	return m.voice
}

// SetPassthroughVolume clamps v to [0, MaxPassthroughVolume] and returns
// the volume applied.
func (m *Mixer) SetPassthroughVolume(v float32) float32 {
	v = min(max(v, 0), MaxPassthroughVolume)
	m.volume.Store(math.Float32bits(v))
	m.conf.Logger.Debug("passthrough volume set", "volume", v)

	return v
}

// PassthroughVolume returns the current voice gain.
func (m *Mixer) PassthroughVolume() float32 {
	return math.Float32frombits(m.volume.Load())
}

// SetPassthrough switches the real voice into or out of the mix. While off,
// the voice is still drained so switching on never replays stale audio.
func (m *Mixer) SetPassthrough(on bool) {
	m.enabled.Store(on)
	m.conf.Logger.Debug("passthrough switched", "enabled", on)
}

// PassthroughEnabled reports whether the voice is mixed in.
func (m *Mixer) PassthroughEnabled() bool {
	return m.enabled.Load()
}

// PassthroughKnob exposes passthrough as a UI control.
func (m *Mixer) PassthroughKnob() uictl.Knob {
	return passthroughKnob{m}
}

// Run mixes and writes until ctx ends. The amount written tracks elapsed
// host time. A stopped sink skips ahead; overruns are expected when nothing
// reads the other side. Any other sink error ends the run.
func (m *Mixer) Run(ctx context.Context) error {
	clk := m.conf.Clock

	ticker := clk.NewTicker(m.conf.Interval)
	defer ticker.Stop()

	start := clk.Now()
	var written uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}

		due := uint64(float64(clk.Since(start)) * m.conf.SampleRate / float64(time.Second))
		if due <= written {
			continue
		}

		// a long stall is not worth catching up on beyond one voice buffer
		frames := min(due-written, uint64(m.conf.PassthroughFrames))

		n, err := m.conf.Sink.Write(m.Mix(int(frames)))
		written = due - frames + uint64(n)

		switch {
		case err == nil, errors.Is(err, driver.ErrOverrun):
		case errors.Is(err, driver.ErrInvalidState):
			written = due
		default:
			return fmt.Errorf("failed to write mix: %w", err)
		}
	}
}

// Mix returns the next frames frames of tone plus scaled voice, clipped to
// [-1, 1]. The returned slice is reused by the next call.
func (m *Mixer) Mix(frames int) []float32 {
	samples := frames * m.conf.Channels
	m.mix = grow(m.mix, samples)
	m.scratch = grow(m.scratch, samples)

	if m.conf.Tone != nil {
		m.conf.Tone.Fill(m.mix)
	} else {
		clear(m.mix)
	}

	n, err := m.voice.Read(m.scratch)
	if err != nil && !errors.Is(err, driver.ErrUnderrun) {
		m.conf.Logger.Debug("passthrough read failed", "error", err)
	}

	if m.enabled.Load() {
		gain := m.PassthroughVolume()
		for i := range n * m.conf.Channels {
			m.mix[i] += gain * m.scratch[i]
		}
	}

	for i, s := range m.mix {
		m.mix[i] = min(max(s, -1), 1)
	}

	return m.mix
}

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}

	return buf[:n]
}

// passthroughKnob switches the real voice in and out.
type passthroughKnob struct {
	m *Mixer
}

func (k passthroughKnob) Read() bool {
	return k.m.PassthroughEnabled()
}

func (k passthroughKnob) On() error {
	k.m.SetPassthrough(true)
	return nil
}

func (k passthroughKnob) Off() error {
	k.m.SetPassthrough(false)
	return nil
}

func (k passthroughKnob) Toggle() error {
	k.m.SetPassthrough(!k.m.PassthroughEnabled())
	return nil
}
