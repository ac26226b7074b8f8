// Package config holds the nROS process configuration: bus selection,
// logging, the optional REST gateway and the bag recorder. Configuration is
// loaded from YAML or JSON, then overridden from NROS_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all nROS configuration.
type Config struct {
	// Node name; defaults to nros.<type>-<pid> when empty.
	Name string `yaml:"name" json:"name" env:"NROS_NODE_NAME"`

	// Bus selection
	Bus BusConfig `yaml:"bus" json:"bus"`

	// Logging
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// REST gateway (optional)
	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`

	// Bag recorder
	Record RecordConfig `yaml:"record" json:"record"`
}

// BusConfig selects which bus to connect to. Address wins over remote
// host/port; both empty means the nROS session bus.
type BusConfig struct {
	Address    string `yaml:"address" json:"address" env:"NROS_BUS_ADDRESS"`
	RemoteHost string `yaml:"remote_host" json:"remote_host" env:"NROS_BUS_REMOTE_HOST"`
	RemotePort int    `yaml:"remote_port" json:"remote_port" env:"NROS_BUS_REMOTE_PORT"`

	// TCPPort is the port the private bus daemon listens on for remote
	// clients. Zero disables the TCP listener.
	TCPPort int `yaml:"tcp_port" json:"tcp_port" env:"NROS_BUS_TCP_PORT"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled" json:"enabled" env:"NROS_LOG_ENABLED"`
	Level      string          `yaml:"level" json:"level" env:"NROS_LOG_LEVEL"`
	Dir        string          `yaml:"dir" json:"dir" env:"NROS_LOG_DIR"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
}

// GatewayConfig configures the REST gateway.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"NROS_GATEWAY_ENABLED"`
	Listen  string `yaml:"listen" json:"listen" env:"NROS_GATEWAY_LISTEN"`
}

// RecordConfig configures bag recording.
type RecordConfig struct {
	Dir string `yaml:"dir" json:"dir" env:"NROS_BAG_DIR"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Gateway: GatewayConfig{
			Listen: "127.0.0.1:7478",
		},
		Record: RecordConfig{
			Dir: filepath.Join(StateDir(), "bags"),
		},
	}
}

// StateDir returns the nROS state directory: /run/nros for root,
// ~/.nros otherwise.
func StateDir() string {
	if os.Geteuid() == 0 {
		return "/run/nros"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "nros")
	}
	return filepath.Join(home, ".nros")
}

// Load reads the configuration from path (YAML unless the extension is
// .json), merges it over the defaults, then applies NROS_* environment
// overrides. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Bus.Address != "" && c.Bus.RemoteHost != "" {
		return fmt.Errorf("bus.address and bus.remote_host are mutually exclusive")
	}
	if c.Bus.RemoteHost != "" && (c.Bus.RemotePort <= 0 || c.Bus.RemotePort > 65535) {
		return fmt.Errorf("bus.remote_port must be in 1..65535 when bus.remote_host is set")
	}
	if c.Bus.TCPPort < 0 || c.Bus.TCPPort > 65535 {
		return fmt.Errorf("bus.tcp_port out of range: %d", c.Bus.TCPPort)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
