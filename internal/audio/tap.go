package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/pkg/channels"
	"github.com/jonboulle/clockwork"
)

// DefaultTapInterval is how often a tap drains the input endpoint.
const DefaultTapInterval = 10 * time.Millisecond

// Position reports how many frames the device clock has advanced since it
// was anchored. *driver.Clock implements it.
type Position interface {
	SamplePosition() (uint64, error)
}

// TapConfig wires a Tap to a device.
type TapConfig struct {
	Source   FrameSource
	Position Position
	Channels int

	// MaxFrames caps a single read, usually the ring capacity.
	MaxFrames int

	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Tap is a software consumer of the loopback input. On each tick it reads
// as many frames as the device clock says are due and broadcasts them as
// one packet to every subscriber.
type Tap struct {
	conf        TapConfig
	broadcaster *channels.Broadcaster[[]float32]
	outputs     []chan []float32
}

// NewTap validates conf.
func NewTap(conf TapConfig) (*Tap, error) {
	if conf.Source == nil || conf.Position == nil {
		return nil, errors.New("tap needs a frame source and a position")
	}

	if conf.Channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", conf.Channels)
	}

	if conf.MaxFrames <= 0 {
		conf.MaxFrames = driver.DefaultRingFrames
	}

	if conf.Interval <= 0 {
		conf.Interval = DefaultTapInterval
	}

	if conf.Clock == nil {
		conf.Clock = clockwork.NewRealClock()
	}

	if conf.Logger == nil {
		conf.Logger = slog.Default()
	}

	return &Tap{conf: conf, broadcaster: channels.NewBroadcaster[[]float32]()}, nil
}

// Subscribe returns a channel of interleaved packets. A zero timeout drops
// packets whenever the channel is full; a positive timeout waits that long
// first. The channel is closed once Run returns. Must be called before Run.
func (t *Tap) Subscribe(buffer int, timeout time.Duration) (<-chan []float32, error) {
	ch := make(chan []float32, buffer)

	var err error
	if timeout > 0 {
		err = t.broadcaster.SubscribeWithTimeout(ch, timeout)
	} else {
		err = t.broadcaster.Subscribe(ch)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to tap: %w", err)
	}

	t.outputs = append(t.outputs, ch)

	return ch, nil
}

// Dropped returns how many packets each subscriber missed, in subscription
// order.
func (t *Tap) Dropped() []int {
	stats := t.broadcaster.Stats()
	out := make([]int, len(stats))
	for i, s := range stats {
		out[i] = s.Dropped
	}

	return out
}

// Run drains the source until ctx ends, then flushes pending packets and
// closes every subscriber channel.
func (t *Tap) Run(ctx context.Context) error {
	// the broadcaster outlives ctx so packets already queued still drain
	bctx, stop := context.WithCancel(context.Background())
	input, err := t.broadcaster.Run(bctx)
	if err != nil {
		stop()
		return fmt.Errorf("failed to start tap broadcaster: %w", err)
	}

	defer func() {
		stop()
		t.broadcaster.Wait()
		for _, ch := range t.outputs {
			close(ch)
		}
	}()

	ticker := t.conf.Clock.NewTicker(t.conf.Interval)
	defer ticker.Stop()

	var consumed uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}

		pos, err := t.conf.Position.SamplePosition()
		if err != nil {
			// clock stopped; the next anchor starts from zero
			consumed = 0
			continue
		}

		if pos < consumed {
			consumed = 0
		}

		due := min(pos-consumed, uint64(t.conf.MaxFrames))
		if due == 0 {
			continue
		}
		consumed = pos

		packet := make([]float32, int(due)*t.conf.Channels)
		n, err := t.conf.Source.Read(packet)
		switch {
		case err == nil, errors.Is(err, driver.ErrUnderrun), errors.Is(err, driver.ErrInvalidState):
		default:
			return fmt.Errorf("failed to read from tap source: %w", err)
		}

		if n == 0 {
			continue
		}

		select {
		case input <- packet[:n*t.conf.Channels]:
		case <-ctx.Done():
			return nil
		}
	}
}
