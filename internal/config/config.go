package config

import (
	"fmt"
	"log"
	"os"

	"github.com/alkime/sokuji/internal/driver"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// EnvProduction represents the production environment.
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Env  string `envconfig:"ENV" default:"development"`
	Port string `envconfig:"PORT" default:"8080"`

	// Security settings
	HSTSMaxAge int    `envconfig:"HSTS_MAX_AGE" default:"31536000"`
	CSPMode    string `envconfig:"CSP_MODE" default:"relaxed"`

	// Logging settings
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"10"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"28"`

	// Device identity; IdentityFile, when set, is overlaid on these values.
	IdentityFile string `envconfig:"IDENTITY_FILE"`
	DriverName   string `envconfig:"DRIVER_NAME" default:"Sokuji"`
	BundleID     string `envconfig:"BUNDLE_ID" default:"com.sokuji.virtualaudio"`
	Icon         string `envconfig:"ICON" default:"BlackHole.icns"`
	DeviceName   string `envconfig:"DEVICE_NAME" default:"Sokuji Virtual Audio"`
	Manufacturer string `envconfig:"MANUFACTURER" default:"Sokuji"`
	Channels     int    `envconfig:"CHANNELS" default:"2"`

	// Data path settings
	SampleRate float64 `envconfig:"SAMPLE_RATE" default:"48000"`
	RingFrames int     `envconfig:"RING_FRAMES" default:"16384"`

	// Host bridge settings
	BridgeCapture  bool   `envconfig:"BRIDGE_CAPTURE" default:"false"`
	BridgePlayback bool   `envconfig:"BRIDGE_PLAYBACK" default:"false"`
	BridgeSource   string `envconfig:"BRIDGE_SOURCE"` // empty selects the system default capture device

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// LoadConfig loads configuration from .env file and environment variables.
func LoadConfig() (*Config, error) {
	// Try to load .env file (optional for development)
	if err := godotenv.Load(); err != nil {
		// Not an error if file doesn't exist (expected in production)
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	// Parse environment variables into config struct
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	return &config, nil
}

// Identity resolves the device identity from the environment values and the
// optional identity file.
func (c *Config) Identity() (driver.Identity, error) {
	id := driver.Identity{
		DriverName:   c.DriverName,
		BundleID:     c.BundleID,
		Icon:         c.Icon,
		DeviceName:   c.DeviceName,
		Manufacturer: c.Manufacturer,
		Channels:     c.Channels,
	}

	if c.IdentityFile != "" {
		profile, err := LoadIdentityFile(c.IdentityFile)
		if err != nil {
			return driver.Identity{}, err
		}
		id = id.Merge(profile)
	}

	if err := id.Validate(); err != nil {
		return driver.Identity{}, fmt.Errorf("invalid identity: %w", err)
	}

	return id, nil
}

// DeviceOptions builds driver options from the configuration.
func (c *Config) DeviceOptions() (driver.Options, error) {
	id, err := c.Identity()
	if err != nil {
		return driver.Options{}, err
	}

	return driver.Options{
		Identity:   id,
		RingFrames: c.RingFrames,
		SampleRate: c.SampleRate,
	}, nil
}

// LoadIdentityFile reads an identity profile from a YAML file. Fields left
// out of the file stay zero.
func LoadIdentityFile(path string) (driver.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return driver.Identity{}, fmt.Errorf("failed to read identity file: %w", err)
	}

	var id driver.Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return driver.Identity{}, fmt.Errorf("failed to parse identity file: %w", err)
	}

	return id, nil
}

// BuildCSP constructs Content Security Policy based on mode.
func BuildCSP(mode string) string {
	if mode == "strict" {
		// Production CSP
		return "default-src 'none'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'none'; " +
			"form-action 'none'"
	}

	// Development/relaxed CSP
	return "default-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:"
}
