package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	mp3encoder "github.com/braheezy/shine-mp3/pkg/mp3"
)

// StreamingEncoder reads interleaved float32 packets from a channel,
// buffers them up to a frame threshold, then encodes each batch to MP3 and
// writes it to an io.Writer.
//
// It stops when the input channel is closed (flushing what is buffered) or
// when the context is cancelled.
type StreamingEncoder struct {
	config EncoderConfig
	input  <-chan []float32
	output io.Writer
	logger *slog.Logger

	encoder *mp3encoder.Encoder
	buffer  []float32

	wg      sync.WaitGroup
	done    chan struct{}
	errOnce sync.Once
	err     error
}

// NewStreamingEncoder creates a new streaming MP3 encoder.
func NewStreamingEncoder(
	config EncoderConfig,
	input <-chan []float32,
	output io.Writer,
	logger *slog.Logger,
) (*StreamingEncoder, error) {
	if input == nil {
		return nil, errors.New("input channel cannot be nil")
	}

	if output == nil {
		return nil, errors.New("output writer cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encoder config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &StreamingEncoder{ //nolint:exhaustruct // wg, errOnce, err initialized on Start()
		config: config,
		input:  input,
		output: output,
		logger: logger,
		buffer: make([]float32, 0, config.BufferThreshold*config.Channels),
		done:   make(chan struct{}),
	}, nil
}

// Start begins the encoding goroutine. Returns error if already started.
func (e *StreamingEncoder) Start(ctx context.Context) error {
	if e.encoder != nil {
		return errors.New("encoder already started")
	}

	// always stereo; mono input is duplicated in encodeBatch
	e.encoder = mp3encoder.NewEncoder(e.config.SampleRate, 2)

	e.wg.Go(func() {
		defer close(e.done)
		defer func() {
			if err := e.Flush(); err != nil {
				e.setError(fmt.Errorf("failed to flush encoder on shutdown: %w", err))
			}
		}()

		threshold := e.config.BufferThreshold * e.config.Channels

		for {
			select {
			case packet, ok := <-e.input:
				if !ok {
					return
				}

				e.buffer = append(e.buffer, packet...)

				if len(e.buffer) >= threshold {
					if err := e.encodeBatch(); err != nil {
						e.setError(err)
						return
					}
				}

			case <-ctx.Done():
				e.setError(fmt.Errorf("encoder context cancelled: %w", ctx.Err()))
				return
			}
		}
	})

	return nil
}

// encodeBatch converts buffered samples to MP3 and writes them to output.
func (e *StreamingEncoder) encodeBatch() error {
	// drop a trailing partial frame rather than misalign the channels
	whole := len(e.buffer) - len(e.buffer)%e.config.Channels
	if whole == 0 {
		return nil
	}

	pcm := Float32ToInt16(e.buffer[:whole])
	if e.config.Channels == 1 {
		stereo := make([]int16, len(pcm)*2)
		for i, s := range pcm {
			stereo[i*2] = s
			stereo[i*2+1] = s
		}
		pcm = stereo
	}

	e.logger.Debug("encoding MP3 batch", "frames", len(pcm)/2)

	if err := e.encoder.Write(e.output, pcm); err != nil {
		return fmt.Errorf("failed to encode audio to MP3: %w", err)
	}

	e.buffer = e.buffer[:0]

	return nil
}

// Flush encodes any remaining buffered data. Safe to call multiple times.
func (e *StreamingEncoder) Flush() error {
	if err := e.encodeBatch(); err != nil {
		return fmt.Errorf("failed to flush MP3 encoder: %w", err)
	}

	return nil
}

// Done is closed once the encoding goroutine has exited, whether the input
// was drained or encoding failed. A producer selects on it so a dead encoder
// never blocks a send.
func (e *StreamingEncoder) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until encoding completes and returns any error that occurred.
func (e *StreamingEncoder) Wait() error {
	e.wg.Wait()

	return e.err
}

func (e *StreamingEncoder) setError(err error) {
	e.errOnce.Do(func() {
		e.err = err
		e.logger.Debug("streaming encoder error", "error", err)
	})
}
