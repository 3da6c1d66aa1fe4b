package audio_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alkime/sokuji/internal/audio"
	"github.com/alkime/sokuji/internal/driver"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTone_Next(t *testing.T) {
	t.Parallel()

	// a quarter of the rate steps the phase by pi/2 per frame
	tone, err := audio.NewTone(12000, 48000, 2, 0.5)
	require.NoError(t, err)

	got := tone.Next(5)
	want := []float32{0, 0, 0.5, 0.5, 0, 0, -0.5, -0.5, 0, 0}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6, "sample %d", i)
	}
}

func TestNewTone_Invalid(t *testing.T) {
	t.Parallel()

	_, err := audio.NewTone(0, 48000, 2, 1)
	require.Error(t, err)

	_, err = audio.NewTone(30000, 48000, 2, 1)
	require.ErrorContains(t, err, "Nyquist")

	_, err = audio.NewTone(440, 48000, 0, 1)
	require.Error(t, err)
}

type chanSink struct {
	mu     sync.Mutex
	frames int
	writes chan int
	err    error
}

func (s *chanSink) Write(samples []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(samples) / 2
	s.frames += n
	s.writes <- n

	return n, s.err
}

func TestTone_FeedPacesByClock(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	fc := clockwork.NewFakeClock()
	tone, err := audio.NewTone(440, 48000, 2, 0.5)
	require.NoError(t, err)

	sink := &chanSink{writes: make(chan int, 4), err: driver.ErrOverrun}
	done := make(chan error, 1)
	go func() { done <- tone.Feed(ctx, sink, fc, 10*time.Millisecond) }()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	fc.Advance(10 * time.Millisecond)
	assert.Equal(t, 480, <-sink.writes)

	// a late tick catches up in one write
	fc.Advance(30 * time.Millisecond)
	assert.Equal(t, 1440, <-sink.writes)

	cancel()
	require.NoError(t, <-done)
}

func TestTone_FeedStopsOnHardError(t *testing.T) {
	t.Parallel()

	fc := clockwork.NewFakeClock()
	tone, err := audio.NewTone(440, 48000, 2, 0.5)
	require.NoError(t, err)

	sink := &chanSink{writes: make(chan int, 4), err: driver.ErrPartialFrame}
	done := make(chan error, 1)
	go func() { done <- tone.Feed(t.Context(), sink, fc, 10*time.Millisecond) }()

	require.NoError(t, fc.BlockUntilContext(t.Context(), 1))
	fc.Advance(10 * time.Millisecond)

	require.ErrorIs(t, <-done, driver.ErrPartialFrame)
}
