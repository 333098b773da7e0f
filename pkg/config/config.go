// Package config provides TOML configuration loading for iscpctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration structure.
type Config struct {
	Remote RemoteConfig `toml:"remote"`
	Daemon DaemonConfig `toml:"daemon"`
}

// RemoteConfig holds settings for discovery and device control.
type RemoteConfig struct {
	SnapshotPath    string `toml:"snapshot_path"`
	DiscoverTimeout string `toml:"discover_timeout"`
	DiscoverPort    int    `toml:"discover_port"`
	VolumeMaxLevel  int    `toml:"volume_max_level"`
	LogLevel        string `toml:"log_level"`
}

// DaemonConfig holds settings for the RPC daemon.
type DaemonConfig struct {
	RPCSocket string `toml:"rpc_socket"`
	DBPath    string `toml:"db_path"`
}

// ParseDiscoverTimeout parses the discovery timeout string to a time.Duration.
func (r *RemoteConfig) ParseDiscoverTimeout() (time.Duration, error) {
	if r.DiscoverTimeout == "" {
		return 5 * time.Second, nil
	}
	d, err := time.ParseDuration(r.DiscoverTimeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("discover_timeout must be positive, got %s", r.DiscoverTimeout)
	}
	return d, nil
}

// Default returns a Config with every value set to its default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.expandPaths()
	return cfg
}

// Load reads and parses a TOML config file, applying defaults for unset values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.expandPaths()
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (cfg *Config) expandPaths() {
	cfg.Remote.SnapshotPath = ExpandPath(cfg.Remote.SnapshotPath)
	cfg.Daemon.DBPath = ExpandPath(cfg.Daemon.DBPath)
	cfg.Daemon.RPCSocket = ExpandPath(cfg.Daemon.RPCSocket)
}

// ExpandPath expands tilde (~) to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}

func applyDefaults(cfg *Config) {

	// Remote defaults
	if cfg.Remote.SnapshotPath == "" {
		cfg.Remote.SnapshotPath = "~/.config/iscpctl/remote.toml"
	}
	if cfg.Remote.DiscoverTimeout == "" {
		cfg.Remote.DiscoverTimeout = "5s"
	}
	if cfg.Remote.DiscoverPort == 0 {
		cfg.Remote.DiscoverPort = 60128
	}
	if cfg.Remote.VolumeMaxLevel == 0 {
		cfg.Remote.VolumeMaxLevel = 30
	}
	if cfg.Remote.LogLevel == "" {
		cfg.Remote.LogLevel = "info"
	}

	// Daemon defaults
	if cfg.Daemon.RPCSocket == "" {
		cfg.Daemon.RPCSocket = "/run/iscpctl/remote.sock"
	}
	if cfg.Daemon.DBPath == "" {
		cfg.Daemon.DBPath = "~/.config/iscpctl/devices.db"
	}
}
