package waveform_test

import (
	"strings"
	"testing"

	"github.com/alkime/sokuji/internal/tui/components/waveform"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

type mockLevels struct {
	samples []float32
}

func (m *mockLevels) Read() []float32 {
	return m.samples
}

func TestWaveform_Empty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "▁▁▁▁▁", waveform.New(nil, 5, 1).View())
	assert.Equal(t, "▁▁▁▁▁", waveform.New(&mockLevels{}, 5, 1).View())
	assert.Equal(t, "   \n▁▁▁", waveform.New(&mockLevels{}, 3, 2).View())
}

func TestWaveform_Silence(t *testing.T) {
	t.Parallel()

	m := waveform.New(&mockLevels{samples: make([]float32, 5)}, 5, 1)
	assert.Equal(t, "     ", m.View())
}

func TestWaveform_FullScale(t *testing.T) {
	t.Parallel()

	// negative peaks count the same as positive ones, and clipping is capped
	m := waveform.New(&mockLevels{samples: []float32{1, -1, 1.5, -2, 1}}, 5, 2)
	assert.Equal(t, "█████\n█████", m.View())
}

func TestWaveform_Shape(t *testing.T) {
	t.Parallel()

	m := waveform.New(&mockLevels{samples: []float32{0, 0.25, 1, 0.25, 0}}, 5, 1)

	// sqrt(0.25) * 8 = 4 steps
	assert.Equal(t, " ▄█▄ ", m.View())
}

func TestWaveform_BucketsToWidth(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 100)
	for i := 50; i < 100; i++ {
		samples[i] = 1
	}

	view := waveform.New(&mockLevels{samples: samples}, 10, 1).View()
	require.Len(t, []rune(view), 10)
	assert.Equal(t, strings.Repeat(" ", 5)+strings.Repeat("█", 5), view)
}

func TestWaveform_TickReschedules(t *testing.T) {
	t.Parallel()

	m := waveform.New(nil, 5, 1)
	assert.NotNil(t, m.Init())

	_, cmd := m.Update(waveform.TickMsg{})
	assert.NotNil(t, cmd)

	_, cmd = m.Update("other")
	assert.Nil(t, cmd)
}
