package audio

import (
	"sync"

	"github.com/alkime/sokuji/pkg/uictl"
)

// History keeps the most recent mono samples for display. Unlike the
// device ring it never blocks a reader out: it is overwritten in place and
// read under a lock, so it must stay off the real-time path.
type History struct {
	samples []float32
	head    int // next write position
	count   int
	mu      sync.RWMutex
}

// NewHistory creates a history holding capacity samples.
func NewHistory(capacity int) *History {
	return &History{samples: make([]float32, max(capacity, 1))}
}

// Write appends samples, overwriting the oldest once full.
func (h *History) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.samples)
	if len(samples) > capacity {
		samples = samples[len(samples)-capacity:]
	}

	for _, s := range samples {
		h.samples[h.head] = s
		h.head = (h.head + 1) % capacity
	}
	h.count = min(h.count+len(samples), capacity)
}

// ReadSamples returns up to n of the most recent samples, oldest first.
func (h *History) ReadSamples(n int) []float32 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || n <= 0 {
		return nil
	}

	n = min(n, h.count)
	capacity := len(h.samples)
	start := (h.head - n + capacity) % capacity

	out := make([]float32, n)
	for i := range n {
		out[i] = h.samples[(start+i)%capacity]
	}

	return out
}

// Count returns the number of samples held.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.count
}

// LevelMeter feeds interleaved packets into a History and exposes a fixed
// window of it as levels.
type LevelMeter struct {
	history  *History
	channels int
	window   int
}

var _ uictl.Levels[float32] = (*LevelMeter)(nil)

// NewLevelMeter keeps window mono samples mixed down from channels.
func NewLevelMeter(channels, window int) *LevelMeter {
	return &LevelMeter{
		history:  NewHistory(window),
		channels: channels,
		window:   window,
	}
}

// Write mixes an interleaved packet down and records it.
func (m *LevelMeter) Write(packet []float32) {
	m.history.Write(MixDown(packet, m.channels))
}

// Read returns the window, oldest first.
func (m *LevelMeter) Read() []float32 {
	return m.history.ReadSamples(m.window)
}

// RMS returns the level of the current window.
func (m *LevelMeter) RMS() float64 {
	return RMS(m.Read())
}
