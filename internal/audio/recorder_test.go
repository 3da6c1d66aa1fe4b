package audio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alkime/sokuji/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder(t *testing.T, maxDuration time.Duration, maxBytes int64) (*audio.Recorder, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "loopback.mp3")
	rec, err := audio.NewRecorder(audio.RecorderConfig{
		OutputPath:  path,
		SampleRate:  48000,
		Channels:    2,
		MaxDuration: maxDuration,
		MaxBytes:    maxBytes,
	}, nil)
	require.NoError(t, err)

	return rec, path
}

// feed sends 20ms tone packets until ctx ends.
func feed(ctx context.Context, t *testing.T, packets chan<- []float32) {
	tone, err := audio.NewTone(440, 48000, 2, 0.5)
	require.NoError(t, err)

	go func() {
		for {
			select {
			case packets <- tone.Next(960):
			case <-ctx.Done():
				return
			}
		}
	}()
}

func TestRecorder_StopsAtMaxDuration(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	rec, path := newRecorder(t, 100*time.Millisecond, 1<<30)
	packets := make(chan []float32)
	feed(ctx, t, packets)

	err := rec.Record(ctx, packets)
	require.ErrorIs(t, err, audio.ErrMaxDurationReached)
	assert.Equal(t, 100*time.Millisecond, rec.Duration())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Equal(t, info.Size(), rec.BytesWritten())
}

func TestRecorder_StopsAtMaxBytes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	rec, _ := newRecorder(t, time.Hour, 1)
	packets := make(chan []float32)
	feed(ctx, t, packets)

	err := rec.Record(ctx, packets)
	require.ErrorIs(t, err, audio.ErrMaxBytesReached)
	assert.GreaterOrEqual(t, rec.BytesWritten(), int64(1))
}

func TestRecorder_FinishesWhenInputCloses(t *testing.T) {
	t.Parallel()

	rec, path := newRecorder(t, time.Hour, 1<<30)
	tone, err := audio.NewTone(440, 48000, 2, 0.5)
	require.NoError(t, err)

	packets := make(chan []float32, 3)
	for range 3 {
		packets <- tone.Next(480)
	}
	close(packets)

	require.NoError(t, rec.Record(t.Context(), packets))
	assert.Equal(t, 30*time.Millisecond, rec.Duration())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestRecorder_WriteErrorEndsRecording(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	rec, _ := newRecorder(t, time.Hour, 1<<30)
	packets := make(chan []float32)
	// the feeder never stops on its own, so only the write error can end this
	feed(ctx, t, packets)

	diskFull := errors.New("disk full")
	done := make(chan error, 1)
	go func() { done <- rec.RecordTo(ctx, failingWriter{err: diskFull}, packets) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, diskFull)
		assert.Zero(t, rec.BytesWritten())
	case <-time.After(5 * time.Second):
		t.Fatal("recording did not stop after the writer failed")
	}
}

func TestNewRecorder_Invalid(t *testing.T) {
	t.Parallel()

	base := audio.RecorderConfig{OutputPath: "x.mp3", MaxDuration: time.Second, MaxBytes: 1}

	bad := base
	bad.OutputPath = ""
	_, err := audio.NewRecorder(bad, nil)
	require.Error(t, err)

	bad = base
	bad.MaxDuration = 0
	_, err = audio.NewRecorder(bad, nil)
	require.ErrorContains(t, err, "MaxDuration")

	bad = base
	bad.SampleRate = 96000
	_, err = audio.NewRecorder(bad, nil)
	require.ErrorContains(t, err, "invalid recorder format")
}
