package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Sentinel errors for limit detection.
var (
	ErrMaxDurationReached = errors.New("max duration reached")
	ErrMaxBytesReached    = errors.New("max bytes reached")
)

// RecorderConfig bounds a recording. Duration is measured in recorded audio,
// not wall time, so a recording that underruns runs longer than MaxDuration.
type RecorderConfig struct {
	OutputPath  string
	SampleRate  int
	Channels    int
	MaxDuration time.Duration
	MaxBytes    int64
}

// Recorder streams loopback packets into an MP3 file.
type Recorder struct {
	config RecorderConfig
	logger *slog.Logger

	bytesWritten atomic.Int64
	frames       atomic.Uint64
}

// NewRecorder validates conf.
func NewRecorder(conf RecorderConfig, logger *slog.Logger) (*Recorder, error) {
	if conf.OutputPath == "" {
		return nil, errors.New("output path cannot be empty")
	}
	if conf.MaxDuration <= 0 {
		return nil, errors.New("MaxDuration must be positive")
	}
	if conf.MaxBytes <= 0 {
		return nil, errors.New("MaxBytes must be positive")
	}
	if err := (EncoderConfig{SampleRate: conf.SampleRate, Channels: conf.Channels}).WithDefaults().Validate(); err != nil {
		return nil, fmt.Errorf("invalid recorder format: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{config: conf, logger: logger}, nil
}

// Record encodes packets into the configured file until ctx ends, packets
// is closed, or a limit is hit. Hitting a limit returns ErrMaxDurationReached
// or ErrMaxBytesReached after the file has been fully written.
func (r *Recorder) Record(ctx context.Context, packets <-chan []float32) (err error) {
	mp3File, err := os.Create(r.config.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create MP3 file %s: %w", r.config.OutputPath, err)
	}
	defer func() {
		if cerr := mp3File.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close MP3 file: %w", cerr)
		}
	}()

	if err := r.RecordTo(ctx, mp3File, packets); err != nil {
		return err
	}

	r.logger.Info("recording finished",
		"path", r.config.OutputPath,
		"duration", r.Duration(),
		"bytes", r.bytesWritten.Load())

	return nil
}

// RecordTo is Record writing to w. A write error on w stops the recording
// and is returned even while packets keep arriving.
func (r *Recorder) RecordTo(ctx context.Context, w io.Writer, packets <-chan []float32) error {
	encoderInput := make(chan []float32, 64)

	encoderConfig := EncoderConfig{
		SampleRate: r.config.SampleRate,
		Channels:   r.config.Channels,
	}.WithDefaults()

	encoder, err := NewStreamingEncoder(encoderConfig, encoderInput, &countingWriter{w: w, n: &r.bytesWritten}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create MP3 encoder: %w", err)
	}

	// the encoder must outlive ctx to flush what was recorded
	if err := encoder.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	limit := r.pump(ctx, packets, encoderInput, encoder.Done(), encoderConfig.SampleRate, encoderConfig.Channels)
	close(encoderInput)

	if err := encoder.Wait(); err != nil {
		return fmt.Errorf("failed to encode MP3: %w", err)
	}

	return limit
}

// pump forwards packets to the encoder until a stop condition. It returns
// early, with nil, when the encoder has died; the caller reads its error
// from Wait.
func (r *Recorder) pump(
	ctx context.Context,
	packets <-chan []float32,
	out chan<- []float32,
	encoderDone <-chan struct{},
	rate, channels int,
) error {
	maxFrames := uint64(r.config.MaxDuration) * uint64(rate) / uint64(time.Second)

	for {
		var packet []float32
		select {
		case p, ok := <-packets:
			if !ok {
				return nil
			}
			packet = p
		case <-ctx.Done():
			return nil
		case <-encoderDone:
			return nil
		}

		select {
		case out <- packet:
		case <-ctx.Done():
			return nil
		case <-encoderDone:
			return nil
		}

		frames := r.frames.Add(uint64(len(packet) / channels))

		if r.bytesWritten.Load() >= r.config.MaxBytes {
			r.logger.Info("recording stopped", "reason", "max_bytes_reached", "bytes", r.bytesWritten.Load())
			return ErrMaxBytesReached
		}

		if frames >= maxFrames {
			r.logger.Info("recording stopped", "reason", "max_duration_reached", "duration", r.Duration())
			return ErrMaxDurationReached
		}
	}
}

// BytesWritten returns the MP3 bytes written so far.
func (r *Recorder) BytesWritten() int64 {
	return r.bytesWritten.Load()
}

// Duration returns the audio recorded so far.
func (r *Recorder) Duration() time.Duration {
	rate := r.config.SampleRate
	if rate == 0 {
		rate = DefaultEncoderSampleRate
	}

	return time.Duration(r.frames.Load() * uint64(time.Second) / uint64(rate))
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))

	return n, err
}
