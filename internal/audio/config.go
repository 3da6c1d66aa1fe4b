package audio

import (
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
)

// DefaultPeriodFrames is the callback period requested from the host.
const DefaultPeriodFrames = 480

// DeviceConfig describes the host device a bridge opens. Only 32-bit float
// samples are supported since that is the loopback wire format.
type DeviceConfig struct {
	Format           malgo.FormatType
	CaptureChannels  int
	PlaybackChannels int
	SampleRate       int
	PeriodFrames     int

	// DeviceName picks a host device by name, matched with MatchesName.
	// Empty selects the system default.
	DeviceName string
}

// Validate checks the config for a bridge of the given type.
func (c DeviceConfig) Validate(devType malgo.DeviceType) error {
	if c.Format != malgo.FormatF32 {
		return errors.New("only 32-bit float format is supported")
	}

	if c.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}

	switch devType { //nolint:exhaustive // duplex and loopback are not bridged
	case malgo.Capture:
		if c.CaptureChannels <= 0 {
			return errors.New("capture channels must be positive")
		}
	case malgo.Playback:
		if c.PlaybackChannels <= 0 {
			return errors.New("playback channels must be positive")
		}
	default:
		return fmt.Errorf("unsupported device type: %v", devType)
	}

	return nil
}

// WithDefaults fills zero fields.
func (c DeviceConfig) WithDefaults() DeviceConfig {
	if c.Format == malgo.FormatUnknown {
		c.Format = malgo.FormatF32
	}

	if c.PeriodFrames == 0 {
		c.PeriodFrames = DefaultPeriodFrames
	}

	return c
}
