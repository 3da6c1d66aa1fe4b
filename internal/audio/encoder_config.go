package audio

import (
	"errors"
	"fmt"
	"slices"
)

const (
	// DefaultBufferThreshold is 4608 frames, four MP3 granules, ~96ms @ 48kHz.
	DefaultBufferThreshold = 4608
	// DefaultEncoderSampleRate matches the loopback default rate.
	DefaultEncoderSampleRate = 48000
	// DefaultEncoderChannels is stereo.
	DefaultEncoderChannels = 2
)

// encoderRates are the MPEG-1/2/2.5 rates the MP3 encoder accepts.
var encoderRates = []int{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000}

// EncoderConfig configures the MP3 streaming encoder.
type EncoderConfig struct {
	// SampleRate in Hz. Must be an MPEG rate.
	SampleRate int

	// Channels of the incoming interleaved packets, 1 or 2. Mono is
	// duplicated to stereo before encoding.
	Channels int

	// BufferThreshold is the number of frames to accumulate before encoding.
	BufferThreshold int
}

// Validate returns an error if the config is invalid.
func (c EncoderConfig) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}

	if !slices.Contains(encoderRates, c.SampleRate) {
		return fmt.Errorf("sample rate %d is not an MPEG rate", c.SampleRate)
	}

	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("only mono or stereo is supported, got %d channels", c.Channels)
	}

	if c.BufferThreshold <= 0 {
		return errors.New("buffer threshold must be positive")
	}

	return nil
}

// WithDefaults returns a config with default values applied to zero fields.
func (c EncoderConfig) WithDefaults() EncoderConfig {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultEncoderSampleRate
	}

	if c.Channels == 0 {
		c.Channels = DefaultEncoderChannels
	}

	if c.BufferThreshold == 0 {
		c.BufferThreshold = DefaultBufferThreshold
	}

	return c
}
