package monitor

import (
	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/pkg/uictl"
)

// Controls is everything the monitor reads or drives.
type Controls struct {
	Input  uictl.Knob
	Output uictl.Knob
	Fill   uictl.CappedDial[int]
	Levels uictl.Levels[float32]

	// Passthrough switches the real voice into the output mix. Nil when no
	// capture source is connected.
	Passthrough uictl.Knob

	// Stats returns the ring counters.
	Stats func() driver.RingStats
}

// Header is the static identity line.
type Header struct {
	DeviceName string
	DeviceUID  string
	Format     string
}

// DeviceControls adapts a device for the monitor.
func DeviceControls(dev *driver.Device, levels uictl.Levels[float32]) Controls {
	return Controls{
		Input:  endpointKnob{dev.Input()},
		Output: endpointKnob{dev.Output()},
		Fill:   ringDial{dev.Ring()},
		Levels: levels,
		Stats:  func() driver.RingStats { return dev.Ring().Stats() },
	}
}

// DeviceHeader builds the header for dev.
func DeviceHeader(dev *driver.Device) Header {
	id := dev.Identity()
	h := Header{DeviceName: id.DeviceName, DeviceUID: id.DeviceUID(), Format: "not negotiated"}
	if f, ok := dev.Format(); ok {
		h.Format = f.String()
	}

	return h
}

// endpointKnob turns a stream endpoint on and off.
type endpointKnob struct {
	e *driver.Endpoint
}

func (k endpointKnob) Read() bool {
	return k.e.State() == driver.Running
}

func (k endpointKnob) On() error {
	return k.e.Start()
}

func (k endpointKnob) Off() error {
	return k.e.Stop()
}

func (k endpointKnob) Toggle() error {
	if k.Read() {
		return k.Off()
	}

	return k.On()
}

// ringDial reads ring fill against capacity.
type ringDial struct {
	rb *driver.RingBuffer
}

func (d ringDial) Cap() (num, max int) {
	return d.rb.Available(), d.rb.Capacity()
}
