package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alkime/sokuji/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2, cfg.Channels)
	assert.InDelta(t, 48000, cfg.SampleRate, 0)
	assert.Equal(t, 16384, cfg.RingFrames)
	assert.True(t, cfg.MetricsEnabled)

	id, err := cfg.Identity()
	require.NoError(t, err)
	assert.Equal(t, "Sokuji Virtual Audio", id.DeviceName)
	assert.Equal(t, "com.sokuji.virtualaudio", id.BundleID)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEVICE_NAME", "Interpreter Loop")
	t.Setenv("RING_FRAMES", "4096")
	t.Setenv("BRIDGE_PLAYBACK", "true")
	t.Setenv("BRIDGE_SOURCE", "BlackHole 2ch")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.RingFrames)
	assert.True(t, cfg.BridgePlayback)
	assert.Equal(t, "BlackHole 2ch", cfg.BridgeSource)

	opts, err := cfg.DeviceOptions()
	require.NoError(t, err)
	assert.Equal(t, "Interpreter Loop", opts.Identity.DeviceName)
	assert.Equal(t, 4096, opts.RingFrames)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DRIVER_NAME=DotEnvLoop\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DRIVER_NAME") })

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "DotEnvLoop", cfg.DriverName)
}

func TestConfig_IdentityFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "identity.yaml")
	content := `
driver_name: "Sokuji"
device_name: "Sokuji Translator Output"
channels: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := &config.Config{
		DriverName:   "Base",
		BundleID:     "com.example.base",
		Icon:         "base.icns",
		DeviceName:   "Base Device",
		Manufacturer: "Example",
		Channels:     2,
		IdentityFile: path,
	}

	id, err := cfg.Identity()
	require.NoError(t, err)
	assert.Equal(t, "Sokuji", id.DriverName)
	assert.Equal(t, "Sokuji Translator Output", id.DeviceName)
	assert.Equal(t, "com.example.base", id.BundleID, "fields missing from the file keep env values")
}

func TestConfig_IdentityFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg := &config.Config{IdentityFile: filepath.Join(dir, "missing.yaml")}
	_, err := cfg.Identity()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read identity file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("channels: [nope"), 0o600))
	cfg.IdentityFile = bad
	_, err = cfg.Identity()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse identity file")
}

func TestConfig_InvalidIdentity(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{DriverName: "Sokuji", BundleID: "nodots", Icon: "x.icns", DeviceName: "X", Channels: 2}
	_, err := cfg.Identity()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid identity")
}

func TestBuildCSP(t *testing.T) {
	t.Parallel()

	assert.Contains(t, config.BuildCSP("strict"), "default-src 'none'")
	assert.Contains(t, config.BuildCSP("relaxed"), "default-src 'self'")
}
