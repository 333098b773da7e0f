package control

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"iscpctl/internal/device"
	"iscpctl/internal/discovery"
	"iscpctl/internal/iscp"
	"iscpctl/internal/remote"
	"iscpctl/internal/rpc"
	"iscpctl/internal/store"
	"iscpctl/pkg/config"
)

// backend is where the device list and selection live: either this process
// (snapshot file plus history database) or a running daemon.
type backend interface {
	Discover(timeout time.Duration) ([]device.Device, error)
	Devices() ([]device.Device, error)
	Send(index int, cmd iscp.Command) (device.Device, error)
	Selected() (int, error)
	Select(index int) error
	History() ([]store.DeviceRecord, error)
	Close() error
}

// openBackend prefers a daemon listening on the configured socket.
func openBackend(cfg *config.Config, log zerolog.Logger) (backend, error) {
	if client, err := rpc.NewClient(cfg.Daemon.RPCSocket); err == nil {
		log.Debug().Str("socket", cfg.Daemon.RPCSocket).Msg("Using running daemon")
		return daemonBackend{client}, nil
	}
	return openLocal(cfg, log)
}

type daemonBackend struct {
	*rpc.Client
}

func (d daemonBackend) Devices() ([]device.Device, error) { return d.ListDevices() }

type localBackend struct {
	reg          *remote.Registry
	db           *store.Store
	snapshotPath string
	log          zerolog.Logger
}

func openLocal(cfg *config.Config, log zerolog.Logger) (*localBackend, error) {
	dbDir := filepath.Dir(cfg.Daemon.DBPath)
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}
	db, err := store.New(cfg.Daemon.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	reg := remote.LoadFrom(cfg.Remote.SnapshotPath, log)
	d := discovery.New(log)
	d.ListenPort = cfg.Remote.DiscoverPort
	d.TargetPort = cfg.Remote.DiscoverPort
	reg.Finder = d

	return &localBackend{reg: reg, db: db, snapshotPath: cfg.Remote.SnapshotPath, log: log}, nil
}

func (l *localBackend) Discover(timeout time.Duration) ([]device.Device, error) {
	if err := l.reg.Discover(timeout); err != nil {
		return nil, err
	}
	devices := l.reg.Devices()
	if err := l.db.Record(devices); err != nil {
		l.log.Warn().Err(err).Msg("Failed to record discovered devices")
	}
	if err := l.reg.SaveTo(l.snapshotPath); err != nil {
		return devices, fmt.Errorf("saving device list: %w", err)
	}
	return devices, nil
}

func (l *localBackend) Devices() ([]device.Device, error) {
	return l.reg.Devices(), nil
}

func (l *localBackend) Send(index int, cmd iscp.Command) (device.Device, error) {
	dev, ok := l.reg.Device(index)
	if !ok {
		return device.Device{}, remote.ErrNoDevice
	}
	if err := dev.Commands().Do(cmd); err != nil {
		return dev, err
	}
	return dev, nil
}

func (l *localBackend) Selected() (int, error) {
	index, err := l.db.Selected()
	if errors.Is(err, store.ErrNoSelection) {
		return 0, nil
	}
	return index, err
}

func (l *localBackend) Select(index int) error {
	if _, ok := l.reg.Device(index); !ok {
		return remote.ErrNoDevice
	}
	return l.db.SetSelected(index)
}

func (l *localBackend) History() ([]store.DeviceRecord, error) {
	return l.db.History()
}

func (l *localBackend) Close() error {
	return l.db.Close()
}
