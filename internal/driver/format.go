package driver

import (
	"fmt"
	"slices"
)

const (
	// BitsPerSample is the only sample width the ring stores (32-bit float).
	BitsPerSample = 32

	// DefaultSampleRate is used when a request leaves the rate unset.
	DefaultSampleRate = 48000
)

// SupportedSampleRates lists every nominal rate the device advertises.
var SupportedSampleRates = []float64{
	8000, 16000, 24000, 44100, 48000, 88200, 96000,
	176400, 192000, 352800, 384000, 705600, 768000,
}

// FormatDescriptor describes an interleaved linear PCM stream format.
type FormatDescriptor struct {
	SampleRate    float64 `json:"sample_rate"`
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bits_per_sample"`
}

// BytesPerFrame is the size of one interleaved frame.
func (f FormatDescriptor) BytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

func (f FormatDescriptor) String() string {
	return fmt.Sprintf("%gHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitsPerSample)
}

// Negotiator validates format requests against the fixed device configuration.
type Negotiator struct {
	channels    int
	defaultRate float64
}

// NewNegotiator creates a negotiator for a device with the given channel
// count. A zero defaultRate selects DefaultSampleRate.
func NewNegotiator(channels int, defaultRate float64) (*Negotiator, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	if defaultRate == 0 {
		defaultRate = DefaultSampleRate
	}

	if !slices.Contains(SupportedSampleRates, defaultRate) {
		return nil, fmt.Errorf("%w: default rate %g Hz", ErrFormatUnsupported, defaultRate)
	}

	return &Negotiator{channels: channels, defaultRate: defaultRate}, nil
}

// Channels returns the fixed channel count.
func (n *Negotiator) Channels() int {
	return n.channels
}

// DefaultRate returns the rate chosen for requests that leave it unset.
func (n *Negotiator) DefaultRate() float64 {
	return n.defaultRate
}

// Negotiate returns the canonical descriptor for req, or ErrFormatUnsupported.
// A zero sample rate or bit depth selects the device default. Failed
// requests are not retried; the caller resubmits a corrected request.
func (n *Negotiator) Negotiate(req FormatDescriptor) (FormatDescriptor, error) {
	if req.Channels != n.channels {
		return FormatDescriptor{}, fmt.Errorf("%w: %d channels requested, device has %d",
			ErrFormatUnsupported, req.Channels, n.channels)
	}

	rate := req.SampleRate
	if rate == 0 {
		rate = n.defaultRate
	}
	if !slices.Contains(SupportedSampleRates, rate) {
		return FormatDescriptor{}, fmt.Errorf("%w: sample rate %g Hz", ErrFormatUnsupported, req.SampleRate)
	}

	bits := req.BitsPerSample
	if bits == 0 {
		bits = BitsPerSample
	}
	if bits != BitsPerSample {
		return FormatDescriptor{}, fmt.Errorf("%w: %d bits per sample, device uses %d",
			ErrFormatUnsupported, req.BitsPerSample, BitsPerSample)
	}

	return FormatDescriptor{
		SampleRate:    rate,
		Channels:      n.channels,
		BitsPerSample: bits,
	}, nil
}

// Supported lists every descriptor Negotiate accepts.
func (n *Negotiator) Supported() []FormatDescriptor {
	out := make([]FormatDescriptor, 0, len(SupportedSampleRates))
	for _, rate := range SupportedSampleRates {
		out = append(out, FormatDescriptor{
			SampleRate:    rate,
			Channels:      n.channels,
			BitsPerSample: BitsPerSample,
		})
	}

	return out
}
