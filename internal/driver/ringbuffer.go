package driver

import (
	"fmt"
	"math"
	"sync/atomic"
)

// RingStats is a snapshot of ring buffer counters. ContendedWrites counts
// writes refused because another was in flight.
type RingStats struct {
	FramesWritten   uint64 `json:"frames_written"`
	FramesRead      uint64 `json:"frames_read"`
	Overruns        uint64 `json:"overruns"`
	DroppedFrames   uint64 `json:"dropped_frames"`
	Underruns       uint64 `json:"underruns"`
	ContendedWrites uint64 `json:"contended_writes"`
	Available       int    `json:"available"`
	Capacity        int    `json:"capacity"`
}

// RingBuffer is a fixed-capacity circular store of interleaved float32
// frames shared by one writer and one reader.
//
// The read and write offsets are monotonically increasing frame counters;
// a frame at offset p lives in slot p mod capacity. Neither side takes a
// lock. The writer makes room by advancing the read offset with a CAS
// (drop-oldest), and the reader commits a read with a CAS on the same
// offset, retrying if an overwrite got there first. Samples are stored as
// atomic words so a read racing an overwrite is discarded, never torn.
//
// The single-writer rule is enforced rather than assumed: a Write that
// overlaps another fails with ErrConcurrentWrite instead of corrupting the
// write offset. Readers need no such guard since every read commits by CAS.
type RingBuffer struct {
	slots    []atomic.Uint32
	capacity uint64
	channels int

	read    atomic.Uint64
	write   atomic.Uint64
	writing atomic.Bool

	framesWritten atomic.Uint64
	framesRead    atomic.Uint64
	overruns      atomic.Uint64
	dropped       atomic.Uint64
	underruns     atomic.Uint64
	contended     atomic.Uint64
}

// NewRingBuffer creates a ring holding capacity frames of channels samples.
func NewRingBuffer(capacity, channels int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", capacity)
	}

	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	return &RingBuffer{
		slots:    make([]atomic.Uint32, capacity*channels),
		capacity: uint64(capacity),
		channels: channels,
	}, nil
}

// Capacity returns the ring size in frames.
func (rb *RingBuffer) Capacity() int {
	return int(rb.capacity)
}

// Channels returns the number of samples per frame.
func (rb *RingBuffer) Channels() int {
	return rb.channels
}

// Positions returns the current read and write offsets in frames. The write
// offset is the sample time of the next frame to be written.
func (rb *RingBuffer) Positions() (read, write uint64) {
	return rb.read.Load(), rb.write.Load()
}

// Available returns the number of unread frames.
func (rb *RingBuffer) Available() int {
	r := rb.read.Load()
	w := rb.write.Load()
	if w <= r {
		return 0
	}

	return int(min(w-r, rb.capacity))
}

// Write appends interleaved samples. Every frame is accepted; when the reader
// has fallen too far behind the oldest unread frames are dropped and the
// returned error wraps ErrOverrun. A write longer than the capacity keeps
// only its most recent frames. A Write overlapping another Write is refused
// with ErrConcurrentWrite.
func (rb *RingBuffer) Write(samples []float32) (int, error) {
	if len(samples)%rb.channels != 0 {
		return 0, fmt.Errorf("%w: %d samples for %d channels", ErrPartialFrame, len(samples), rb.channels)
	}

	if !rb.writing.CompareAndSwap(false, true) {
		rb.contended.Add(1)
		return 0, fmt.Errorf("%w: another producer is writing", ErrConcurrentWrite)
	}
	defer rb.writing.Store(false)

	frames := uint64(len(samples) / rb.channels)
	if frames == 0 {
		return 0, nil
	}

	src := samples
	skipped := uint64(0)
	if frames > rb.capacity {
		skipped = frames - rb.capacity
		src = samples[skipped*uint64(rb.channels):]
	}

	start := rb.write.Load() + skipped
	end := start + (frames - skipped)

	// claim room before touching any slot the reader may still own
	var dropped uint64
	for {
		r := rb.read.Load()
		if end-r <= rb.capacity {
			break
		}

		floor := end - rb.capacity
		if rb.read.CompareAndSwap(r, floor) {
			dropped = floor - r
			break
		}
	}

	ch := uint64(rb.channels)
	for i := range frames - skipped {
		base := ((start + i) % rb.capacity) * ch
		for c := range ch {
			rb.slots[base+c].Store(math.Float32bits(src[i*ch+c]))
		}
	}

	rb.write.Store(end)
	rb.framesWritten.Add(frames)

	if dropped > 0 {
		rb.overruns.Add(1)
		rb.dropped.Add(dropped)

		return int(frames), fmt.Errorf("%w: dropped %d frames", ErrOverrun, dropped)
	}

	return int(frames), nil
}

// Read fills dst with up to len(dst)/channels frames from the read offset and
// returns the number of frames read. It never waits for data: a short read
// returns what was available with an error wrapping ErrUnderrun.
func (rb *RingBuffer) Read(dst []float32) (int, error) {
	if len(dst)%rb.channels != 0 {
		return 0, fmt.Errorf("%w: %d samples for %d channels", ErrPartialFrame, len(dst), rb.channels)
	}

	want := uint64(len(dst) / rb.channels)
	if want == 0 {
		return 0, nil
	}

	ch := uint64(rb.channels)

	var n uint64
	for {
		r := rb.read.Load()
		w := rb.write.Load()

		avail := uint64(0)
		if w > r {
			avail = w - r
		}
		n = min(want, avail, rb.capacity)

		for i := range n {
			base := ((r + i) % rb.capacity) * ch
			for c := range ch {
				dst[i*ch+c] = math.Float32frombits(rb.slots[base+c].Load())
			}
		}

		if rb.read.CompareAndSwap(r, r+n) {
			break
		}
	}

	rb.framesRead.Add(n)

	if n < want {
		rb.underruns.Add(1)

		return int(n), fmt.Errorf("%w: %d of %d frames available", ErrUnderrun, n, want)
	}

	return int(n), nil
}

// Discard drops every unread frame and returns how many were dropped. It
// acts as the consumer and is safe alongside a concurrent writer.
func (rb *RingBuffer) Discard() int {
	for {
		r := rb.read.Load()
		w := rb.write.Load()
		if w <= r {
			return 0
		}

		if rb.read.CompareAndSwap(r, w) {
			return int(w - r)
		}
	}
}

// Stats returns a snapshot of the ring counters.
func (rb *RingBuffer) Stats() RingStats {
	return RingStats{
		FramesWritten:   rb.framesWritten.Load(),
		FramesRead:      rb.framesRead.Load(),
		Overruns:        rb.overruns.Load(),
		DroppedFrames:   rb.dropped.Load(),
		Underruns:       rb.underruns.Load(),
		ContendedWrites: rb.contended.Load(),
		Available:       rb.Available(),
		Capacity:        int(rb.capacity),
	}
}
