// Package monitor is the live terminal view of a loopback device.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/internal/tui/components/waveform"
	"github.com/alkime/sokuji/internal/tui/style"
	"github.com/alkime/sokuji/pkg/uictl"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const refreshInterval = 100 * time.Millisecond

type refreshMsg struct{}

// Model shows endpoint states, ring fill, error counters and a waveform of
// what the input side is reading.
type Model struct {
	header   Header
	controls Controls
	keys     KeyMap
	help     help.Model
	fill     progress.Model
	wave     waveform.Model
	cancel   context.CancelFunc

	stats driver.RingStats
	err   error
}

// New creates the monitor. cancel, if set, is called when the user quits.
func New(header Header, controls Controls, cancel context.CancelFunc) Model {
	h := help.New()
	h.Styles.ShortKey = style.Key
	h.Styles.ShortDesc = style.Help
	h.Styles.ShortSeparator = style.Help

	return Model{
		header:   header,
		controls: controls,
		keys:     DefaultKeyMap(),
		help:     h,
		fill: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		wave:   waveform.New(controls.Levels, 60, 4),
		cancel: cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.wave.Init(), refresh())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.ToggleInput):
			m.err = toggle("input", m.controls.Input)
		case key.Matches(msg, m.keys.ToggleOutput):
			m.err = toggle("output", m.controls.Output)
		case key.Matches(msg, m.keys.TogglePassthrough):
			m.err = toggle("voice passthrough", m.controls.Passthrough)
		}
		return m, nil

	case refreshMsg:
		if m.controls.Stats != nil {
			m.stats = m.controls.Stats()
		}
		return m, refresh()

	case waveform.TickMsg:
		var cmd tea.Cmd
		m.wave, cmd = m.wave.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(style.Title.Render(m.header.DeviceName) + " ")
	b.WriteString(style.Subtitle.Render(m.header.DeviceUID+" · "+m.header.Format) + "\n\n")

	b.WriteString(style.Label.Render("Output: ") + stateView(m.controls.Output) + "  ")
	b.WriteString(style.Label.Render("Input: ") + stateView(m.controls.Input))
	if m.controls.Passthrough != nil {
		b.WriteString("  " + style.Label.Render("Voice: ") + switchView(m.controls.Passthrough))
	}
	b.WriteString("\n\n")

	if m.controls.Fill != nil {
		num, capacity := m.controls.Fill.Cap()
		percent := 0.0
		if capacity > 0 {
			percent = float64(num) / float64(capacity)
		}
		b.WriteString(style.Label.Render("Ring: ") + m.fill.ViewAs(percent) + " ")
		b.WriteString(style.Subtitle.Render(fmt.Sprintf("%d / %d frames", num, capacity)) + "\n")
	}

	b.WriteString(counter("overruns", m.stats.Overruns) + "  ")
	b.WriteString(counter("dropped", m.stats.DroppedFrames) + "  ")
	b.WriteString(counter("underruns", m.stats.Underruns) + "  ")
	b.WriteString(counter("contended", m.stats.ContendedWrites) + "  ")
	b.WriteString(style.Muted.Render(fmt.Sprintf("written %d  read %d", m.stats.FramesWritten, m.stats.FramesRead)))
	b.WriteString("\n\n")

	b.WriteString(m.wave.View() + "\n\n")

	if m.err != nil {
		b.WriteString(style.Error.Render(m.err.Error()) + "\n")
	}

	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func toggle(name string, k uictl.Knob) error {
	if k == nil {
		return nil
	}

	if err := k.Toggle(); err != nil {
		return fmt.Errorf("failed to toggle %s: %w", name, err)
	}

	return nil
}

func stateView(k uictl.Knob) string {
	switch {
	case k == nil:
		return style.Muted.Render("n/a")
	case k.Read():
		return style.Running.Render("running")
	default:
		return style.Stopped.Render("stopped")
	}
}

func switchView(k uictl.Knob) string {
	if k.Read() {
		return style.Running.Render("on")
	}

	return style.Stopped.Render("off")
}

func counter(label string, n uint64) string {
	s := fmt.Sprintf("%s %d", label, n)
	if n > 0 {
		return style.Warning.Render(s)
	}

	return style.Muted.Render(s)
}
