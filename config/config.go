// Package config loads the agent's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dotside-studios/rfid-agent/rfid"
)

// Driver kinds.
const (
	DriverBridge    = "bridge"
	DriverSimulator = "simulator"
)

// DefaultPort matches the port the agent has always listened on.
const DefaultPort = 18080

// Config is the agent configuration file.
type Config struct {
	Reader  ReaderConfig  `yaml:"reader"`
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Log     LogConfig     `yaml:"log"`
}

// ReaderConfig selects the driver and the settings applied after connecting.
type ReaderConfig struct {
	Address   string `yaml:"address"`
	Driver    string `yaml:"driver"`
	BridgeURL string `yaml:"bridge_url,omitempty"`

	ReaderMode *rfid.ReaderMode  `yaml:"reader_mode,omitempty"`
	SearchMode *rfid.SearchMode  `yaml:"search_mode,omitempty"`
	Session    *uint16           `yaml:"session,omitempty"`
	Report     *rfid.ReportFlags `yaml:"report,omitempty"`

	// Antennas is a mask such as "1100"; empty keeps the reader defaults.
	Antennas    string           `yaml:"antennas,omitempty"`
	TxPowerDbm  *float64         `yaml:"tx_power_dbm,omitempty"`
	PowerPolicy rfid.PowerPolicy `yaml:"power_policy"`

	// Buffer is the depth of the report channel between the observer and
	// slow consumers.
	Buffer         int           `yaml:"buffer"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ServerConfig configures the HTTP and websocket server.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	Host       string `yaml:"host,omitempty"`
	APISecret  string `yaml:"api_secret,omitempty"`
	EnableMDNS bool   `yaml:"mdns"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type CaptureConfig struct {
	Path string `yaml:"path,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs against the simulator.
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			Address:        "127.0.0.1",
			Driver:         DriverSimulator,
			PowerPolicy:    rfid.PowerPassThrough,
			Buffer:         256,
			RequestTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Port:       DefaultPort,
			EnableMDNS: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Only the syntax is checked here; call Validate once every override has
// been applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks field values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Reader.Driver {
	case DriverSimulator:
	case DriverBridge:
		if c.Reader.BridgeURL == "" {
			return fmt.Errorf("reader.bridge_url is required for the bridge driver")
		}
	default:
		return fmt.Errorf("unknown reader.driver %q", c.Reader.Driver)
	}
	if c.Reader.Address == "" {
		return fmt.Errorf("reader.address is required")
	}
	if c.Reader.Antennas != "" {
		mask, err := rfid.ParseAntennaMask(c.Reader.Antennas)
		if err != nil {
			return fmt.Errorf("reader.antennas: %w", err)
		}
		if !mask.Any() {
			return fmt.Errorf("reader.antennas must enable at least one antenna")
		}
	}
	if c.Reader.Buffer < 1 {
		return fmt.Errorf("reader.buffer must be positive, got %d", c.Reader.Buffer)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Profile converts the reader section into the settings applied on startup.
func (c *Config) Profile() (rfid.Profile, error) {
	p := rfid.Profile{
		ReaderMode: c.Reader.ReaderMode,
		SearchMode: c.Reader.SearchMode,
		Session:    c.Reader.Session,
		Report:     c.Reader.Report,
		TxPowerDbm: c.Reader.TxPowerDbm,
	}
	if c.Reader.Antennas != "" {
		mask, err := rfid.ParseAntennaMask(c.Reader.Antennas)
		if err != nil {
			return rfid.Profile{}, fmt.Errorf("reader.antennas: %w", err)
		}
		p.Antennas = mask
	}
	return p, nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the agent's root logger.
func (c LogConfig) NewLogger() (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}
