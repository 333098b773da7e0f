// Package device models a controllable receiver and transmits ISCP messages
// to it.
package device

import (
	"fmt"
	"net"

	"iscpctl/internal/iscp"
)

// MACMaxLen is the longest hardware identifier kept on a Device.
const MACMaxLen = 12

// Area codes reported by receivers during discovery.
const (
	AreaEuropeAsia   = "XX"
	AreaNorthAmerica = "DX"
	AreaJapan        = "JJ"
)

// AreaName returns a human-readable name for an area code.
func AreaName(area string) string {
	switch area {
	case AreaEuropeAsia:
		return "Europe/Asia"
	case AreaNorthAmerica:
		return "North America"
	case AreaJapan:
		return "Japan"
	default:
		return area
	}
}

// Sender transmits one encoded message.
type Sender interface {
	Send(m iscp.Message) error
}

// Device is a receiver reachable at Address. It holds no connection state;
// each Send opens and closes its own connection.
type Device struct {
	Address string `toml:"address" msgpack:"address"`
	Model   string `toml:"model" msgpack:"model"`
	Area    string `toml:"area" msgpack:"area"`
	MAC     string `toml:"mac" msgpack:"mac"`

	// Interface is the local network interface the discovery reply arrived
	// on, when known.
	Interface string `toml:"interface,omitempty" msgpack:"interface,omitempty"`
}

// New returns a Device, truncating mac to MACMaxLen characters.
func New(address, model, area, mac string) Device {
	if len(mac) > MACMaxLen {
		mac = mac[:MACMaxLen]
	}
	return Device{Address: address, Model: model, Area: area, MAC: mac}
}

// FromAddress returns a Device known only by its address.
func FromAddress(address string) Device {
	return Device{Address: address}
}

func (d Device) String() string {
	if d.Model == "" {
		return d.Address
	}
	return fmt.Sprintf("%s at %s", d.Model, d.Address)
}

// Send dials the device, writes m once and closes the connection. No reply
// is read.
func (d Device) Send(m iscp.Message) error {
	conn, err := net.Dial("tcp", d.Address)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", d.Address, err)
	}
	defer conn.Close()

	if _, err := conn.Write(m.Encode()); err != nil {
		return fmt.Errorf("writing %s to %s: %w", m.Command(), d.Address, err)
	}
	return nil
}

// Raw sends an arbitrary command code and parameter.
func (d Device) Raw(command, parameter string) error {
	return send(d, iscp.Raw(command, parameter))
}

// Commands returns the command builder bound to d.
func (d Device) Commands() *Commands {
	return &Commands{target: d}
}

// Open dials the device and keeps the connection for repeated sends.
func (d Device) Open() (*Session, error) {
	conn, err := net.Dial("tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", d.Address, err)
	}
	return &Session{device: d, conn: conn}, nil
}

func send(s Sender, c iscp.Command) error {
	m, err := c.Message()
	if err != nil {
		return err
	}
	return s.Send(m)
}
