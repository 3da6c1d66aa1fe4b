package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alkime/sokuji/internal/driver"
	"github.com/jonboulle/clockwork"
)

// DefaultToneHz is the test tone frequency.
const DefaultToneHz = 440

// Tone generates a sine wave with the same sample on every channel.
type Tone struct {
	freq      float64
	rate      float64
	channels  int
	amplitude float32
	phase     float64
}

// NewTone creates a generator.
func NewTone(freq, rate float64, channels int, amplitude float32) (*Tone, error) {
	if freq <= 0 || rate <= 0 {
		return nil, fmt.Errorf("frequency and rate must be positive, got %g Hz at %g Hz", freq, rate)
	}

	if freq >= rate/2 {
		return nil, fmt.Errorf("frequency %g Hz is above Nyquist for %g Hz", freq, rate)
	}

	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	return &Tone{freq: freq, rate: rate, channels: channels, amplitude: amplitude}, nil
}

// Fill writes len(dst)/channels frames into dst, continuing the phase.
func (t *Tone) Fill(dst []float32) {
	step := 2 * math.Pi * t.freq / t.rate
	frames := len(dst) / t.channels

	for f := range frames {
		s := t.amplitude * float32(math.Sin(t.phase))
		for c := range t.channels {
			dst[f*t.channels+c] = s
		}

		t.phase += step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
}

// Next returns the next frames frames.
func (t *Tone) Next(frames int) []float32 {
	out := make([]float32, frames*t.channels)
	t.Fill(out)

	return out
}

// Feed writes the tone into sink in real time, one chunk per tick of clk,
// until ctx ends. The amount written tracks elapsed host time so ticks that
// fire late do not slow the tone down. Overruns are expected when nothing
// reads the other side. Any error other than an overrun or a stopped sink
// ends the feed.
func (t *Tone) Feed(ctx context.Context, sink FrameSink, clk clockwork.Clock, interval time.Duration) error {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	start := clk.Now()
	var written uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			due := uint64(float64(clk.Since(start)) * t.rate / float64(time.Second))
			if due <= written {
				continue
			}

			n, err := sink.Write(t.Next(int(due - written)))
			written += uint64(n)

			switch {
			case err == nil, errors.Is(err, driver.ErrOverrun):
			case errors.Is(err, driver.ErrInvalidState):
				// stopped sink: skip ahead instead of bursting on restart
				written = due
			default:
				return fmt.Errorf("failed to write tone: %w", err)
			}
		}
	}
}
