package driver

import "errors"

// Error kinds reported by the loopback data path. None of them is fatal:
// callers recover by renegotiating or restarting the stream.
var (
	// ErrFormatUnsupported is returned when a requested format does not match
	// the device configuration.
	ErrFormatUnsupported = errors.New("format unsupported")

	// ErrInvalidState is returned when an operation is attempted in the wrong
	// stream state or on the wrong endpoint direction.
	ErrInvalidState = errors.New("invalid state")

	// ErrOverrun is returned alongside a successful write when the writer
	// outran the reader and the oldest unread frames were dropped.
	ErrOverrun = errors.New("overrun")

	// ErrUnderrun is returned alongside a short read when fewer frames were
	// available than requested.
	ErrUnderrun = errors.New("underrun")

	// ErrPartialFrame is returned when an interleaved sample slice does not
	// hold a whole number of frames.
	ErrPartialFrame = errors.New("partial frame")

	// ErrConcurrentWrite is returned when a second producer calls Write while
	// another write is in flight. Nothing is written; the producers must be
	// merged into one, for example with a mixer.
	ErrConcurrentWrite = errors.New("concurrent write")
)
