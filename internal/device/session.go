package device

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"iscpctl/internal/iscp"
)

// ErrSessionClosed is returned by Send after Close.
var ErrSessionClosed = errors.New("device: session closed")

// Session reuses one connection to a device across sends. It is an opt-in
// alternative to Device.Send; the receiver never answers, so a broken
// connection only surfaces as a write error.
type Session struct {
	device Device

	mu   sync.Mutex
	conn net.Conn
}

// Device returns the device this session is connected to.
func (s *Session) Device() Device { return s.device }

// Send writes m on the shared connection.
func (s *Session) Send(m iscp.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrSessionClosed
	}
	if _, err := s.conn.Write(m.Encode()); err != nil {
		return fmt.Errorf("writing %s to %s: %w", m.Command(), s.device.Address, err)
	}
	return nil
}

// Raw sends an arbitrary command code and parameter.
func (s *Session) Raw(command, parameter string) error {
	return send(s, iscp.Raw(command, parameter))
}

// Commands returns the command builder bound to the session.
func (s *Session) Commands() *Commands {
	return &Commands{target: s}
}

// Close closes the connection. Further sends fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
