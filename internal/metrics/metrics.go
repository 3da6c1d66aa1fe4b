// Package metrics exposes loopback device counters to Prometheus.
package metrics

import (
	"github.com/alkime/sokuji/internal/driver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StatsSource is anything that can snapshot device stats.
type StatsSource interface {
	Stats() driver.Stats
}

// NewRegistry returns a registry whose loopback metrics are read from src at
// scrape time, plus the standard Go and process collectors.
func NewRegistry(src StatsSource, identity driver.Identity) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	f := promauto.With(reg)
	labels := prometheus.Labels{"device_uid": identity.DeviceUID()}

	counter := func(name, help string, read func(driver.RingStats) uint64) {
		f.NewCounterFunc(prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 {
			return float64(read(src.Stats().Ring))
		})
	}

	counter("loopback_frames_written_total", "Frames written to the output stream.",
		func(s driver.RingStats) uint64 { return s.FramesWritten })
	counter("loopback_frames_read_total", "Frames read from the input stream.",
		func(s driver.RingStats) uint64 { return s.FramesRead })
	counter("loopback_overruns_total", "Writes that dropped unread frames.",
		func(s driver.RingStats) uint64 { return s.Overruns })
	counter("loopback_dropped_frames_total", "Unread frames dropped by overruns.",
		func(s driver.RingStats) uint64 { return s.DroppedFrames })
	counter("loopback_underruns_total", "Reads that returned fewer frames than requested.",
		func(s driver.RingStats) uint64 { return s.Underruns })
	counter("loopback_contended_writes_total", "Writes refused because another producer was writing.",
		func(s driver.RingStats) uint64 { return s.ContendedWrites })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "loopback_ring_fill_frames",
		Help:        "Unread frames in the ring buffer.",
		ConstLabels: labels,
	}, func() float64 {
		return float64(src.Stats().Ring.Available)
	})

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "loopback_ring_capacity_frames",
		Help:        "Ring buffer capacity.",
		ConstLabels: labels,
	}, func() float64 {
		return float64(src.Stats().Ring.Capacity)
	})

	for _, dir := range []driver.Direction{driver.Input, driver.Output} {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "loopback_stream_running",
			Help: "1 when the stream endpoint is running.",
			ConstLabels: prometheus.Labels{
				"device_uid": identity.DeviceUID(),
				"direction":  dir.String(),
			},
		}, func() float64 {
			s := src.Stats()
			state := s.Output
			if dir == driver.Input {
				state = s.Input
			}
			if state == driver.Running.String() {
				return 1
			}
			return 0
		})
	}

	return reg
}
