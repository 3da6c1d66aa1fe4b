package audio_test

import (
	"math"
	"testing"

	"github.com/alkime/sokuji/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32Bytes_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.5, -0.25, 1, -1}
	buf := make([]byte, len(in)*4)
	audio.Float32ToBytes(buf, in)

	out := audio.BytesToFloat32(nil, buf)
	assert.Equal(t, in, out)

	// a short destination only receives what fits
	short := make([]byte, 8)
	audio.Float32ToBytes(short, in)
	assert.Equal(t, in[:2], audio.BytesToFloat32(nil, short))
}

func TestBytesToFloat32_ReusesBuffer(t *testing.T) {
	t.Parallel()

	dst := make([]float32, 0, 8)
	buf := make([]byte, 12)
	audio.Float32ToBytes(buf, []float32{1, 2, 3})

	out := audio.BytesToFloat32(dst, buf)
	require.Len(t, out, 3)
	assert.Equal(t, 8, cap(out))
}

func TestFloat32ToInt16_Clips(t *testing.T) {
	t.Parallel()

	got := audio.Float32ToInt16([]float32{0, 0.5, 1.5, -2, 1, -1})
	assert.Equal(t, []int16{0, math.MaxInt16 / 2, math.MaxInt16, -math.MaxInt16, math.MaxInt16, -math.MaxInt16}, got)
}

func TestMixDown(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float32{0, 0.5}, audio.MixDown([]float32{1, -1, 0.25, 0.75}, 2))

	mono := []float32{0.1, 0.2}
	assert.Equal(t, mono, audio.MixDown(mono, 1))
}

func TestRMS(t *testing.T) {
	t.Parallel()

	assert.Zero(t, audio.RMS(nil))
	assert.InDelta(t, 0.5, audio.RMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
}
