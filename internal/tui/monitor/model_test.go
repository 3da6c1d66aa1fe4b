package monitor_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/internal/tui/monitor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/jonboulle/clockwork"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

type mockKnob struct {
	on  atomic.Bool
	err error
}

func (k *mockKnob) Read() bool { return k.on.Load() }
func (k *mockKnob) On() error  { k.on.Store(true); return nil }
func (k *mockKnob) Off() error { k.on.Store(false); return nil }

func (k *mockKnob) Toggle() error {
	if k.err != nil {
		return k.err
	}
	k.on.Store(!k.on.Load())
	return nil
}

type mockDial struct{ num, max int }

func (d mockDial) Cap() (int, int) { return d.num, d.max }

type mockLevels struct{ samples []float32 }

func (m mockLevels) Read() []float32 { return m.samples }

// waitFor blocks until every substring has appeared in the output read
// during this call. The renderer skips unchanged lines, so text seen by an
// earlier call is not seen again.
func waitFor(t *testing.T, tm *teatest.TestModel, substrs ...string) {
	t.Helper()
	teatest.WaitFor(t, tm.Output(), func(buf []byte) bool {
		for _, s := range substrs {
			if !bytes.Contains(buf, []byte(s)) {
				return false
			}
		}
		return true
	}, teatest.WithCheckInterval(50*time.Millisecond), teatest.WithDuration(3*time.Second))
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestMonitor_TogglesAndQuits(t *testing.T) {
	in, out := &mockKnob{}, &mockKnob{}
	cancelled := false

	controls := monitor.Controls{
		Input:  in,
		Output: out,
		Fill:   mockDial{num: 256, max: 1024},
		Levels: mockLevels{samples: []float32{0.5, -0.5, 1}},
		Stats: func() driver.RingStats {
			return driver.RingStats{Overruns: 2, DroppedFrames: 64, FramesWritten: 4096}
		},
	}
	header := monitor.Header{DeviceName: "Sokuji Virtual Audio", DeviceUID: "Sokuji2ch_UID", Format: "48000Hz/2ch/32bit"}

	m := monitor.New(header, controls, func() { cancelled = true })
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 30))

	waitFor(t, tm, "Sokuji Virtual Audio", "256 / 1024 frames", "overruns 2")

	tm.Send(keyPress('o'))
	require.Eventually(t, out.Read, time.Second, 10*time.Millisecond)
	assert.False(t, in.Read())

	tm.Send(keyPress('i'))
	require.Eventually(t, in.Read, time.Second, 10*time.Millisecond)
	waitFor(t, tm, "running")

	tm.Send(keyPress('q'))
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
	assert.True(t, cancelled)
}

func TestMonitor_ShowsToggleError(t *testing.T) {
	out := &mockKnob{err: errors.New("format not negotiated")}

	m := monitor.New(monitor.Header{DeviceName: "dev"}, monitor.Controls{Output: out}, nil)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 30))

	tm.Send(keyPress('o'))
	waitFor(t, tm, "failed to toggle output: format not negotiated")

	require.NoError(t, tm.Quit())
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
}

func TestMonitor_TogglesPassthrough(t *testing.T) {
	voice := &mockKnob{}

	m := monitor.New(monitor.Header{DeviceName: "dev"}, monitor.Controls{Passthrough: voice}, nil)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(100, 30))

	waitFor(t, tm, "Voice: off", "toggle voice")

	tm.Send(keyPress('p'))
	require.Eventually(t, voice.Read, time.Second, 10*time.Millisecond)
	waitFor(t, tm, "Voice: on")

	require.NoError(t, tm.Quit())
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
}

func TestMonitor_PassthroughKeyWithoutSource(t *testing.T) {
	m := monitor.New(monitor.Header{DeviceName: "dev"}, monitor.Controls{}, nil)

	updated, cmd := m.Update(keyPress('p'))
	assert.Nil(t, cmd)
	assert.NotContains(t, updated.View(), "Voice:")
	assert.NotContains(t, updated.View(), "failed to toggle")
}

func TestDeviceControls(t *testing.T) {
	t.Parallel()

	dev, err := driver.New(driver.Options{
		Identity:   driver.DefaultIdentity(),
		RingFrames: 64,
		Clock:      clockwork.NewFakeClock(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	h := monitor.DeviceHeader(dev)
	assert.Equal(t, "Sokuji2ch_UID", h.DeviceUID)
	assert.Equal(t, "not negotiated", h.Format)

	c := monitor.DeviceControls(dev, nil)
	require.ErrorIs(t, c.Output.Toggle(), driver.ErrInvalidState)

	_, err = dev.Negotiate(driver.FormatDescriptor{SampleRate: 48000, Channels: 2})
	require.NoError(t, err)
	assert.Equal(t, "48000Hz/2ch/32bit", monitor.DeviceHeader(dev).Format)

	require.NoError(t, c.Output.Toggle())
	assert.True(t, c.Output.Read())
	require.NoError(t, c.Input.On())

	_, err = dev.Output().Write(make([]float32, 20))
	require.NoError(t, err)

	num, capacity := c.Fill.Cap()
	assert.Equal(t, 10, num)
	assert.Equal(t, 64, capacity)
	assert.Equal(t, uint64(10), c.Stats().FramesWritten)

	require.NoError(t, c.Output.Toggle())
	require.NoError(t, c.Input.Off())
	assert.False(t, dev.IsRunning())
}
