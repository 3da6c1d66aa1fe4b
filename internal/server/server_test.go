package server_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alkime/sokuji/internal/config"
	"github.com/alkime/sokuji/internal/driver"
	"github.com/alkime/sokuji/internal/metrics"
	"github.com/alkime/sokuji/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	srv   *server.Server
	dev   *driver.Device
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	cfg := &config.Config{
		Env:        "test",
		Port:       "8080",
		HSTSMaxAge: 31536000,
		CSPMode:    "strict",
		LogLevel:   "error",
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	fc := clockwork.NewFakeClock()
	dev, err := driver.New(driver.Options{
		Identity:   driver.DefaultIdentity(),
		RingFrames: 480,
		Clock:      fc,
		Logger:     logger,
	})
	require.NoError(t, err)

	reg := metrics.NewRegistry(dev, dev.Identity())

	return fixture{srv: server.New(cfg, dev, reg, logger), dev: dev, clock: fc}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())

	return v
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), "Sokuji2ch_UID")

	// security headers
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestDeviceEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/device", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[map[string]any](t, w)
	assert.Equal(t, "com.sokuji.virtualaudio", got["bundle_id"])
	assert.Equal(t, "BlackHole.icns", got["icon"])
	assert.Equal(t, "Sokuji Virtual Audio", got["device_name"])
	assert.InDelta(t, 2, got["channels"], 0)
	assert.Equal(t, "Sokuji2ch_UID", got["device_uid"])
	assert.Equal(t, "Sokuji2ch_ModelUID", got["model_uid"])
}

func TestFormatsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/formats", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[struct {
		Channels          int                       `json:"channels"`
		DefaultSampleRate float64                   `json:"default_sample_rate"`
		Formats           []driver.FormatDescriptor `json:"formats"`
	}](t, w)

	assert.Equal(t, 2, got.Channels)
	assert.InDelta(t, 48000, got.DefaultSampleRate, 0)
	assert.Len(t, got.Formats, len(driver.SupportedSampleRates))
}

func TestNegotiateEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/format", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"mono rejected", "/api/v1/format", `{"sample_rate":48000,"channels":1}`, http.StatusUnprocessableEntity},
		{"odd rate rejected", "/api/v1/format", `{"sample_rate":12345,"channels":2}`, http.StatusUnprocessableEntity},
		{"bad body", "/api/v1/format", `{"channels":"two"}`, http.StatusBadRequest},
		{"empty body", "/api/v1/format", ``, http.StatusBadRequest},
		{"unknown direction", "/api/v1/format?direction=sideways", `{"channels":2}`, http.StatusNotFound},
		{"default rate", "/api/v1/format?direction=output", `{"channels":2}`, http.StatusOK},
		{"both endpoints", "/api/v1/format", `{"sample_rate":44100,"channels":2}`, http.StatusOK},
	}

	for _, tt := range tests {
		w := f.do(t, http.MethodPost, tt.path, tt.body)
		assert.Equal(t, tt.status, w.Code, "%s: %s", tt.name, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/v1/format", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, driver.FormatDescriptor{SampleRate: 44100, Channels: 2, BitsPerSample: 32},
		decode[driver.FormatDescriptor](t, w))
}

func TestStreamEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// start before negotiation conflicts
	w := f.do(t, http.MethodPost, "/api/v1/streams/output/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/streams/sideways/start", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/format", `{"sample_rate":48000,"channels":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	for _, dir := range []string{"output", "input"} {
		w = f.do(t, http.MethodPost, "/api/v1/streams/"+dir+"/start", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"state":"running"`)
	}

	// renegotiating to another format while running conflicts
	w = f.do(t, http.MethodPost, "/api/v1/format", `{"sample_rate":96000,"channels":2}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := f.dev.Output().Write(make([]float32, 20))
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[driver.Stats](t, w)
	assert.Equal(t, "running", stats.Output)
	assert.Equal(t, uint64(10), stats.Ring.FramesWritten)
	assert.Equal(t, 10, stats.Ring.Available)

	w = f.do(t, http.MethodPost, "/api/v1/streams/input/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"stopped"`)
}

func TestTimestampEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/timestamp", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := f.dev.Negotiate(driver.FormatDescriptor{SampleRate: 48000, Channels: 2})
	require.NoError(t, err)
	require.NoError(t, f.dev.Output().Start())

	f.clock.Advance(25 * time.Millisecond)

	w = f.do(t, http.MethodGet, "/api/v1/timestamp", "")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[struct {
		SampleTime     float64 `json:"sample_time"`
		SamplePosition uint64  `json:"sample_position"`
	}](t, w)
	assert.InDelta(t, 960, got.SampleTime, 0)
	assert.Equal(t, uint64(1200), got.SamplePosition)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `loopback_ring_capacity_frames{device_uid="Sokuji2ch_UID"} 480`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
