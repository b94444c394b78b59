// Package config loads the commun node settings from YAML.
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

	"github.com/Ankesh2004/go-commun/pkg/p2p"
)

type Storage struct {
	// Kind is "dir" or "s3".
	Kind      string `yaml:"kind"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Config holds everything needed to run a client or server node.
type Config struct {
	Transport string `yaml:"transport"`
	// Addr is the listen address of a server node.
	Addr      string `yaml:"addr"`
	// Remote is the address a client node dials.
	Remote    string `yaml:"remote"`

	SendTimeout       time.Duration `yaml:"send_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	MaxPingLoss       int           `yaml:"max_ping_loss"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	DiscoveryPort     int           `yaml:"discovery_port"`

	LogLevel   string `yaml:"log_level"`
	// StatusAddr serves /status and /metrics when set.
	StatusAddr string `yaml:"status_addr"`

	Storage Storage `yaml:"storage"`
}

// DefaultPath returns ~/.commun/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".commun", "config.yaml")
	}
	return filepath.Join(home, ".commun", "config.yaml")
}

func Default() *Config {
	return &Config{
		Transport:         "tcp",
		Addr:              fmt.Sprintf("0.0.0.0:%d", p2p.DefaultPort),
		Remote:            fmt.Sprintf("127.0.0.1:%d", p2p.DefaultPort),
		SendTimeout:       60 * time.Second,
		PingInterval:      60 * time.Second,
		MaxPingLoss:       3,
		BroadcastInterval: p2p.DefaultBroadcastInterval,
		DiscoveryPort:     p2p.DefaultPort,
		LogLevel:          "info",
		Storage: Storage{
			Kind: "dir",
			Dir:  "received",
		},
	}
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns the defaults with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := p2p.ParseType(c.Transport); err != nil {
		return err
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send_timeout must be positive, got %s", c.SendTimeout)
	}
	if c.MaxPingLoss <= 0 {
		return fmt.Errorf("max_ping_loss must be positive, got %d", c.MaxPingLoss)
	}
	if c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535 {
		return fmt.Errorf("discovery_port out of range: %d", c.DiscoveryPort)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Storage.Kind {
	case "dir":
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for s3")
		}
		if c.Storage.Region == "" {
			return errors.New("storage.region is required for s3")
		}
	default:
		return fmt.Errorf("unknown storage kind %q", c.Storage.Kind)
	}
	return nil
}

// TransportType returns the parsed transport. Call Validate first.
func (c *Config) TransportType() p2p.Type {
	t, _ := p2p.ParseType(c.Transport)
	return t
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
