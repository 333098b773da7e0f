// Package rpc exposes a shared device registry over a Unix socket so that
// one long-running iscpctl process can serve many short-lived clients.
package rpc

import (
	"errors"
	"fmt"
	"net"
	netrpc "net/rpc"
	"os"
	"time"

	"github.com/rs/zerolog"

	"iscpctl/internal/device"
	"iscpctl/internal/iscp"
	"iscpctl/internal/remote"
	"iscpctl/internal/store"
)

var errNoStore = errors.New("no device store configured")

// Service is the RPC service exposed by the daemon.
type Service struct {
	registry     *remote.Shared
	store        *store.Store
	snapshotPath string
	log          zerolog.Logger
}

// NewService returns a Service over registry. db and snapshotPath are
// optional; when set, every successful discovery is recorded in the history
// store and written to the snapshot file.
func NewService(registry *remote.Shared, db *store.Store, snapshotPath string, log zerolog.Logger) *Service {
	return &Service{registry: registry, store: db, snapshotPath: snapshotPath, log: log}
}

// DiscoverArgs is the request for Discover.
type DiscoverArgs struct {
	Timeout time.Duration
}

// DevicesReply carries a device list.
type DevicesReply struct {
	Devices []device.Device
}

// ListDevicesArgs is the request for ListDevices.
type ListDevicesArgs struct{}

// SnapshotArgs is the request for Snapshot.
type SnapshotArgs struct{}

// SnapshotReply is the response for Snapshot.
type SnapshotReply struct {
	Text string
}

// SendArgs is the request for Send.
type SendArgs struct {
	Index   int
	Command iscp.Command
}

// SendReply is the response for Send.
type SendReply struct {
	Device device.Device
}

// SelectArgs is the request for Select.
type SelectArgs struct {
	Index int
}

// SelectedArgs is the request for Selected.
type SelectedArgs struct{}

// SelectedReply carries the selected device index.
type SelectedReply struct {
	Index int
}

// HistoryArgs is the request for History.
type HistoryArgs struct{}

// HistoryReply is the response for History.
type HistoryReply struct {
	Records []store.DeviceRecord
}

// Discover runs a discovery round and returns the new device list.
func (s *Service) Discover(args *DiscoverArgs, reply *DevicesReply) error {
	devices, err := s.registry.Discover(args.Timeout)
	if err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.Record(devices); err != nil {
			s.log.Warn().Err(err).Msg("Failed to record discovered devices")
		}
	}
	if s.snapshotPath != "" {
		if err := s.registry.SaveTo(s.snapshotPath); err != nil {
			s.log.Warn().Err(err).Str("path", s.snapshotPath).Msg("Failed to save device snapshot")
		}
	}

	reply.Devices = devices
	return nil
}

// ListDevices returns the current device list.
func (s *Service) ListDevices(args *ListDevicesArgs, reply *DevicesReply) error {
	reply.Devices = s.registry.Devices()
	return nil
}

// Snapshot returns the current device list as TOML.
func (s *Service) Snapshot(args *SnapshotArgs, reply *SnapshotReply) error {
	text, err := s.registry.Serialize()
	if err != nil {
		return err
	}
	reply.Text = text
	return nil
}

// Send delivers one command to the device at args.Index.
func (s *Service) Send(args *SendArgs, reply *SendReply) error {
	dev, ok := s.registry.Device(args.Index)
	if !ok {
		return remote.ErrNoDevice
	}

	if err := dev.Commands().Do(args.Command); err != nil {
		return fmt.Errorf("sending %s to %s: %w", args.Command, dev.Address, err)
	}

	s.log.Info().
		Int("index", args.Index).
		Str("address", dev.Address).
		Str("command", args.Command.String()).
		Msg("Command sent")

	reply.Device = dev
	return nil
}

// Select makes args.Index the device later commands act on.
func (s *Service) Select(args *SelectArgs, reply *SelectedReply) error {
	if _, ok := s.registry.Device(args.Index); !ok {
		return remote.ErrNoDevice
	}
	if s.store == nil {
		return errNoStore
	}
	if err := s.store.SetSelected(args.Index); err != nil {
		return fmt.Errorf("saving selection: %w", err)
	}
	reply.Index = args.Index
	return nil
}

// Selected returns the selected device index, or 0 when none was chosen.
func (s *Service) Selected(args *SelectedArgs, reply *SelectedReply) error {
	if s.store == nil {
		return errNoStore
	}
	index, err := s.store.Selected()
	if err != nil && !errors.Is(err, store.ErrNoSelection) {
		return fmt.Errorf("reading selection: %w", err)
	}
	reply.Index = index
	return nil
}

// History returns every device the daemon has recorded.
func (s *Service) History(args *HistoryArgs, reply *HistoryReply) error {
	if s.store == nil {
		return errNoStore
	}
	records, err := s.store.History()
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	reply.Records = records
	return nil
}

// StartServer listens on socketPath and serves svc until the returned
// listener is closed.
func StartServer(socketPath string, svc *Service, log zerolog.Logger) (net.Listener, error) {
	server := netrpc.NewServer()
	if err := server.Register(svc); err != nil {
		return nil, fmt.Errorf("registering RPC service: %w", err)
	}

	// Remove existing socket file if present
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", socketPath, err)
	}

	if err := os.Chmod(socketPath, 0660); err != nil {
		log.Warn().Err(err).Msg("Failed to set socket permissions")
	}

	log.Info().Str("socket", socketPath).Msg("RPC server started")

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Error().Err(err).Msg("RPC accept error")
				continue
			}
			go server.ServeConn(conn)
		}
	}()

	return listener, nil
}

// Client is a client for the iscpctl RPC service.
type Client struct {
	client *netrpc.Client
}

// NewClient dials the Unix socket and returns an RPC client.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC socket %s: %w", socketPath, err)
	}
	return &Client{client: netrpc.NewClient(conn)}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Discover asks the daemon to run a discovery round.
func (c *Client) Discover(timeout time.Duration) ([]device.Device, error) {
	reply := &DevicesReply{}
	if err := c.client.Call("Service.Discover", &DiscoverArgs{Timeout: timeout}, reply); err != nil {
		return nil, err
	}
	return reply.Devices, nil
}

// ListDevices fetches the daemon's current device list.
func (c *Client) ListDevices() ([]device.Device, error) {
	reply := &DevicesReply{}
	if err := c.client.Call("Service.ListDevices", &ListDevicesArgs{}, reply); err != nil {
		return nil, err
	}
	return reply.Devices, nil
}

// Snapshot fetches the daemon's device list as TOML.
func (c *Client) Snapshot() (string, error) {
	reply := &SnapshotReply{}
	if err := c.client.Call("Service.Snapshot", &SnapshotArgs{}, reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

// Send asks the daemon to deliver cmd to the device at index. A missing
// device is reported as remote.ErrNoDevice.
func (c *Client) Send(index int, cmd iscp.Command) (device.Device, error) {
	reply := &SendReply{}
	if err := c.client.Call("Service.Send", &SendArgs{Index: index, Command: cmd}, reply); err != nil {
		return device.Device{}, fromServer(err)
	}
	return reply.Device, nil
}

// Select asks the daemon to remember index as the selected device.
func (c *Client) Select(index int) error {
	err := c.client.Call("Service.Select", &SelectArgs{Index: index}, &SelectedReply{})
	return fromServer(err)
}

// Selected fetches the daemon's selected device index.
func (c *Client) Selected() (int, error) {
	reply := &SelectedReply{}
	if err := c.client.Call("Service.Selected", &SelectedArgs{}, reply); err != nil {
		return 0, err
	}
	return reply.Index, nil
}

// History fetches the daemon's discovery history.
func (c *Client) History() ([]store.DeviceRecord, error) {
	reply := &HistoryReply{}
	if err := c.client.Call("Service.History", &HistoryArgs{}, reply); err != nil {
		return nil, err
	}
	return reply.Records, nil
}

// fromServer restores sentinel errors that net/rpc flattened to strings.
func fromServer(err error) error {
	if err != nil && err.Error() == remote.ErrNoDevice.Error() {
		return remote.ErrNoDevice
	}
	return err
}
