// Package waveform renders recent loopback levels as a bar graph.
package waveform

import (
	"math"
	"strings"
	"time"

	"github.com/alkime/sokuji/internal/tui/style"
	"github.com/alkime/sokuji/pkg/uictl"
	tea "github.com/charmbracelet/bubbletea"
)

// blockChars are the nine fill levels of one cell, empty first.
var blockChars = []rune(" ▁▂▃▄▅▆▇█")

// TickMsg triggers a redraw.
type TickMsg struct{}

// Model reads float samples in [-1, 1] from a Levels control and draws one
// column per bucket of samples, oldest on the left.
type Model struct {
	levels uictl.Levels[float32]
	width  int
	height int
}

// New creates a waveform width columns wide and height rows tall.
func New(levels uictl.Levels[float32], width, height int) Model {
	return Model{
		levels: levels,
		width:  max(width, 1),
		height: max(height, 1),
	}
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(TickMsg); ok {
		return m, m.tick()
	}

	return m, nil
}

func (m Model) View() string {
	if m.levels == nil {
		return m.renderEmpty()
	}

	samples := m.levels.Read()
	if len(samples) == 0 {
		return m.renderEmpty()
	}

	return m.render(m.columnLevels(samples))
}

// tick redraws at ~20 FPS.
func (m Model) tick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

func (m Model) render(levels []int) string {
	rows := make([]string, m.height)

	for row := range m.height {
		// row 0 is the top; each row spans eight fill steps
		base := (m.height - 1 - row) * 8

		var sb strings.Builder
		for _, level := range levels {
			fill := min(max(level-base, 0), 8)
			sb.WriteRune(blockChars[fill])
		}

		rows[row] = style.Progress.Render(sb.String())
	}

	return strings.Join(rows, "\n")
}

// columnLevels maps the peak of each bucket to 0..height*8.
func (m Model) columnLevels(samples []float32) []int {
	levels := make([]int, m.width)
	bucket := max(1, len(samples)/m.width)
	top := m.height * 8

	for col := range m.width {
		start := col * bucket
		if start >= len(samples) {
			break
		}

		end := min(start+bucket, len(samples))
		levels[col] = amplitudeToLevel(peak(samples[start:end]), top)
	}

	return levels
}

func (m Model) renderEmpty() string {
	rows := make([]string, m.height)
	for row := range m.height {
		fill := " "
		if row == m.height-1 {
			fill = "▁"
		}
		rows[row] = style.Muted.Render(strings.Repeat(fill, m.width))
	}

	return strings.Join(rows, "\n")
}

func peak(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		p = max(p, math.Abs(float64(s)))
	}

	return min(p, 1)
}

// amplitudeToLevel uses a square-root curve so quiet signals stay visible.
func amplitudeToLevel(amp float64, top int) int {
	if amp <= 0 {
		return 0
	}

	return min(int(math.Sqrt(amp)*float64(top)), top)
}
