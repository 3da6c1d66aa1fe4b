package driver

import (
	"errors"
	"fmt"
	"strings"
)

// Default identity of the Sokuji virtual audio device.
const (
	DefaultDriverName   = "Sokuji"
	DefaultBundleID     = "com.sokuji.virtualaudio"
	DefaultIcon         = "BlackHole.icns"
	DefaultDeviceName   = "Sokuji Virtual Audio"
	DefaultManufacturer = "Sokuji"
	DefaultChannels     = 2
)

// Identity is the static record the host reads once when the device is
// registered. It never changes for the lifetime of a Device.
type Identity struct {
	DriverName   string `json:"driver_name"   yaml:"driver_name"`
	BundleID     string `json:"bundle_id"     yaml:"bundle_id"`
	Icon         string `json:"icon"          yaml:"icon"`
	DeviceName   string `json:"device_name"   yaml:"device_name"`
	Manufacturer string `json:"manufacturer"  yaml:"manufacturer"`
	Channels     int    `json:"channels"      yaml:"channels"`
}

// DefaultIdentity returns the Sokuji branding.
func DefaultIdentity() Identity {
	return Identity{
		DriverName:   DefaultDriverName,
		BundleID:     DefaultBundleID,
		Icon:         DefaultIcon,
		DeviceName:   DefaultDeviceName,
		Manufacturer: DefaultManufacturer,
		Channels:     DefaultChannels,
	}
}

// Merge returns a copy of i with every non-zero field of o applied on top.
func (i Identity) Merge(o Identity) Identity {
	if o.DriverName != "" {
		i.DriverName = o.DriverName
	}
	if o.BundleID != "" {
		i.BundleID = o.BundleID
	}
	if o.Icon != "" {
		i.Icon = o.Icon
	}
	if o.DeviceName != "" {
		i.DeviceName = o.DeviceName
	}
	if o.Manufacturer != "" {
		i.Manufacturer = o.Manufacturer
	}
	if o.Channels != 0 {
		i.Channels = o.Channels
	}

	return i
}

// Validate returns an error if the identity cannot be registered.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.DriverName) == "" {
		return errors.New("driver name is required")
	}

	if strings.TrimSpace(i.DeviceName) == "" {
		return errors.New("device name is required")
	}

	if err := validateBundleID(i.BundleID); err != nil {
		return err
	}

	if i.Icon == "" {
		return errors.New("icon resource is required")
	}

	if i.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", i.Channels)
	}

	return nil
}

// DeviceUID is the persistent identifier the host uses to remember the device.
func (i Identity) DeviceUID() string {
	return fmt.Sprintf("%s%dch_UID", i.DriverName, i.Channels)
}

// ModelUID identifies the device model across instances.
func (i Identity) ModelUID() string {
	return fmt.Sprintf("%s%dch_ModelUID", i.DriverName, i.Channels)
}

// validateBundleID checks for a reverse-DNS identifier such as
// "com.example.audio".
func validateBundleID(id string) error {
	if id == "" {
		return errors.New("bundle identifier is required")
	}

	parts := strings.Split(id, ".")
	if len(parts) < 2 {
		return fmt.Errorf("bundle identifier %q must be reverse-DNS", id)
	}

	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("bundle identifier %q has an empty component", id)
		}
		for _, r := range p {
			ok := r == '-' || r == '_' ||
				(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				return fmt.Errorf("bundle identifier %q contains invalid character %q", id, r)
			}
		}
	}

	return nil
}
