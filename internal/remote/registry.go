// Package remote owns the ordered list of known receivers, runs discovery
// and persists the list as a TOML snapshot.
//
// Devices are addressed by position. A discovery run replaces the whole
// list, so an index obtained before it may point at a different device, or
// none, afterwards.
package remote

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"iscpctl/internal/device"
	"iscpctl/internal/discovery"
)

const (
	appName      = "iscpctl"
	snapshotFile = "remote.toml"
)

// ErrNoDevice reports a lookup of an index with no device.
var ErrNoDevice = errors.New("remote: no device at this index")

// Finder runs one discovery round.
type Finder interface {
	Discover(timeout time.Duration) ([]device.Device, error)
}

// Registry is the ordered list of known devices. It does no locking; see
// Shared for concurrent use.
type Registry struct {
	// Finder is used by Discover. New sets it to a discovery.Discoverer.
	Finder Finder

	devices []device.Device
	log     zerolog.Logger
}

type snapshot struct {
	Devices []device.Device `toml:"devices"`
}

// New returns an empty Registry that discovers on the standard port.
func New(log zerolog.Logger) *Registry {
	return &Registry{Finder: discovery.New(log), log: log}
}

// Discover replaces the device list with the result of a discovery round.
// On failure the current list is left untouched.
func (r *Registry) Discover(timeout time.Duration) error {
	found, err := r.Finder.Discover(timeout)
	if err != nil {
		return fmt.Errorf("discovering devices: %w", err)
	}
	r.devices = found
	r.log.Info().Int("devices", len(found)).Dur("timeout", timeout).Msg("Discovery finished")
	return nil
}

// Device returns the device at index, or false if there is none.
func (r *Registry) Device(index int) (device.Device, bool) {
	if index < 0 || index >= len(r.devices) {
		return device.Device{}, false
	}
	return r.devices[index], true
}

// Devices returns a copy of the device list.
func (r *Registry) Devices() []device.Device {
	out := make([]device.Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int { return len(r.devices) }

// Serialize renders the device list as TOML.
func (r *Registry) Serialize() (string, error) {
	data, err := toml.Marshal(snapshot{Devices: r.devices})
	if err != nil {
		return "", fmt.Errorf("marshaling devices: %w", err)
	}
	return string(data), nil
}

// Deserialize parses a snapshot produced by Serialize. The returned
// Registry uses the standard discovery Finder.
func Deserialize(text string, log zerolog.Logger) (*Registry, error) {
	var snap snapshot
	if err := toml.Unmarshal([]byte(text), &snap); err != nil {
		return nil, fmt.Errorf("parsing device snapshot: %w", err)
	}
	r := New(log)
	r.devices = snap.Devices
	return r, nil
}

// Load reads the snapshot at DefaultSnapshotPath.
func Load(log zerolog.Logger) *Registry {
	path, err := DefaultSnapshotPath()
	if err != nil {
		log.Warn().Err(err).Msg("No snapshot location, starting empty")
		return New(log)
	}
	return LoadFrom(path, log)
}

// LoadFrom reads a snapshot file. A missing, unreadable or invalid file
// yields an empty Registry.
func LoadFrom(path string, log zerolog.Logger) *Registry {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to read device snapshot, starting empty")
		}
		return New(log)
	}

	r, err := Deserialize(string(data), log)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Invalid device snapshot, starting empty")
		return New(log)
	}

	log.Debug().Str("path", path).Int("devices", r.Len()).Msg("Device snapshot loaded")
	return r
}

// Save writes the snapshot to DefaultSnapshotPath.
func (r *Registry) Save() error {
	path, err := DefaultSnapshotPath()
	if err != nil {
		return err
	}
	return r.SaveTo(path)
}

// SaveTo writes the snapshot to path, replacing any previous file
// atomically.
func (r *Registry) SaveTo(path string) error {
	text, err := r.Serialize()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	// Each save gets its own temp file so concurrent saves never share one.
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+snapshotFile+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting mode on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("saving snapshot %s: %w", path, err)
	}
	return nil
}

// DefaultSnapshotPath returns the per-user snapshot location:
// $XDG_CONFIG_HOME/iscpctl/remote.toml, ~/.config/iscpctl/remote.toml, or
// %LOCALAPPDATA%\iscpctl\remote.toml on Windows.
func DefaultSnapshotPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, snapshotFile), nil
}

// ConfigDir returns the per-user directory for iscpctl state.
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appName), nil
		}
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// Raw sends one command to an address that need not be in any registry.
func Raw(address, command, parameter string) error {
	return device.FromAddress(address).Raw(command, parameter)
}
