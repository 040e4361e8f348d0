package bridge

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andygmpub/gpsbridge/internal/channel"
	"github.com/andygmpub/gpsbridge/internal/provider"
	"github.com/andygmpub/gpsbridge/internal/tracklog"
)

// Config holds all bridge configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider" json:"provider"`
	Channel   ChannelConfig   `yaml:"channel" json:"channel"`
	Forwarder ForwarderConfig `yaml:"forwarder" json:"forwarder"`
	Battery   BatteryConfig   `yaml:"battery" json:"battery"`
	TrackLog  tracklog.Config `yaml:"tracklog" json:"tracklog"`
}

// ProviderConfig selects and configures the location backend.
type ProviderConfig struct {
	Type string              `yaml:"type" json:"type"` // "gpsd", "nmea" or "demo"
	GPSD provider.GPSDConfig `yaml:"gpsd" json:"gpsd"`
	NMEA provider.NMEAConfig `yaml:"nmea" json:"nmea"`
}

// ChannelConfig selects and configures the outbound transport.
type ChannelConfig struct {
	Type      string                  `yaml:"type" json:"type"` // "websocket" or "redis"
	Endpoint  channel.Endpoint        `yaml:"endpoint" json:"endpoint"`
	WebSocket channel.WebSocketConfig `yaml:"websocket" json:"websocket"`
	Redis     channel.RedisConfig     `yaml:"redis" json:"redis"`
}

// ForwarderConfig tunes the forwarding behavior. Intervals are in seconds.
type ForwarderConfig struct {
	PositionIntervalSec  int `yaml:"position_interval_sec" json:"positionIntervalSec"`
	SatelliteIntervalSec int `yaml:"satellite_interval_sec" json:"satelliteIntervalSec"`
	FreshnessSec         int `yaml:"freshness_sec" json:"freshnessSec"`
	RetryIntervalSec     int `yaml:"retry_interval_sec" json:"retryIntervalSec"`

	// LegacyAltitude keeps the historical wire quirk where the altitude
	// field carries the longitude value. Existing consumers parse the
	// message that way; turn it off only when the remote side has been
	// updated to read a true altitude.
	LegacyAltitude bool `yaml:"legacy_altitude" json:"legacyAltitude"`
}

// BatteryConfig tunes the low-battery watcher.
type BatteryConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	SysfsPath    string `yaml:"sysfs_path" json:"sysfsPath"`
	ThresholdPct int    `yaml:"threshold_pct" json:"thresholdPct"`
	PollSec      int    `yaml:"poll_sec" json:"pollSec"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Type: "demo",
			GPSD: provider.GPSDConfig{Addr: "localhost:2947"},
			NMEA: provider.NMEAConfig{PortPath: "/dev/ttyGPS", BaudRate: 9600},
		},
		Channel: ChannelConfig{
			Type: "websocket",
			Endpoint: channel.Endpoint{
				AppID: "org.gec.gpsViewer",
				Port:  "gps.port",
			},
			WebSocket: channel.WebSocketConfig{URL: "ws://127.0.0.1:8765"},
			Redis:     channel.RedisConfig{Addr: "127.0.0.1:6379"},
		},
		Forwarder: ForwarderConfig{
			PositionIntervalSec:  3,
			SatelliteIntervalSec: 10,
			FreshnessSec:         30,
			RetryIntervalSec:     5,
			LegacyAltitude:       true,
		},
		Battery: BatteryConfig{
			Enabled:      true,
			SysfsPath:    "/sys/class/power_supply",
			ThresholdPct: 5,
			PollSec:      60,
		},
		TrackLog: tracklog.Config{
			Enabled:    false,
			Path:       "/var/log/gpsbridge",
			IntervalMs: 1000,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		// Real env takes precedence over the .env file.
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: GPS_PROVIDER, GPSD_ADDR, GPS_PORT, GPS_BAUD, CHANNEL_TYPE,
// CHANNEL_URL, REDIS_ADDR, REMOTE_APP_ID, REMOTE_PORT, LEGACY_ALTITUDE,
// TRACKLOG_ENABLED, TRACKLOG_PATH, BATTERY_THRESHOLD
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GPS_PROVIDER"); v != "" {
		c.Provider.Type = v
	}
	if v := os.Getenv("GPSD_ADDR"); v != "" {
		c.Provider.GPSD.Addr = v
	}
	if v := os.Getenv("GPS_PORT"); v != "" {
		c.Provider.NMEA.PortPath = v
	}
	if v := os.Getenv("GPS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Provider.NMEA.BaudRate = n
		}
	}
	if v := os.Getenv("CHANNEL_TYPE"); v != "" {
		c.Channel.Type = v
	}
	if v := os.Getenv("CHANNEL_URL"); v != "" {
		c.Channel.WebSocket.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Channel.Redis.Addr = v
	}
	if v := os.Getenv("REMOTE_APP_ID"); v != "" {
		c.Channel.Endpoint.AppID = v
	}
	if v := os.Getenv("REMOTE_PORT"); v != "" {
		c.Channel.Endpoint.Port = v
	}
	if v := os.Getenv("LEGACY_ALTITUDE"); v != "" {
		c.Forwarder.LegacyAltitude = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("TRACKLOG_ENABLED"); v != "" {
		c.TrackLog.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("TRACKLOG_PATH"); v != "" {
		c.TrackLog.Path = v
	}
	if v := os.Getenv("BATTERY_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Battery.ThresholdPct = n
		}
	}
}
