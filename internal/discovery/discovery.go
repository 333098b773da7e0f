// Package discovery finds ISCP receivers on the local network by UDP
// broadcast.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"iscpctl/internal/device"
	"iscpctl/internal/iscp"
	"iscpctl/internal/netif"
)

const (
	// Port is the UDP port receivers listen on for discovery queries.
	Port = 60128

	maxPacketSize = 1024
	separator     = "/"
)

// Discoverer broadcasts a discovery query and collects replies.
type Discoverer struct {
	// ListenPort is the local UDP port to bind. Zero picks an ephemeral port.
	ListenPort int

	// TargetPort is the port the query is sent to on every target.
	TargetPort int

	// Targets returns the addresses to query. Defaults to
	// netif.BroadcastAddrs.
	Targets func() ([]net.IP, error)

	Log zerolog.Logger
}

// New returns a Discoverer bound to the standard discovery port.
func New(log zerolog.Logger) *Discoverer {
	return &Discoverer{
		ListenPort: Port,
		TargetPort: Port,
		Targets:    netif.BroadcastAddrs,
		Log:        log,
	}
}

// Discover runs one discovery round with a default Discoverer.
func Discover(timeout time.Duration, log zerolog.Logger) ([]device.Device, error) {
	return New(log).Discover(timeout)
}

// Discover sends the query to every target and collects replies until
// timeout has elapsed. Running out of time is not an error; whatever was
// collected is returned, possibly nothing.
func (d *Discoverer) Discover(timeout time.Duration) ([]device.Device, error) {
	query := Query()
	queryBytes := query.Encode()

	targets, err := d.targets()
	if err != nil {
		return nil, fmt.Errorf("enumerating broadcast addresses: %w", err)
	}

	// Go enables SO_BROADCAST on UDP sockets.
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: d.ListenPort})
	if err != nil {
		return nil, fmt.Errorf("listening on UDP port %d: %w", d.ListenPort, err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		d.Log.Debug().Err(err).Msg("Interface control messages unavailable")
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}

	for _, ip := range targets {
		addr := &net.UDPAddr{IP: ip, Port: d.TargetPort}
		d.Log.Debug().Str("target", addr.String()).Msg("Sending discovery query")
		if _, err := conn.WriteToUDP(queryBytes, addr); err != nil {
			return nil, fmt.Errorf("sending discovery query to %s: %w", addr, err)
		}
	}

	var devices []device.Device
	buf := make([]byte, maxPacketSize)
	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				d.Log.Warn().Err(err).Msg("Discovery read ended")
			}
			break
		}

		// Our own query looped back through the broadcast address.
		if n == len(queryBytes) {
			continue
		}

		msg, ok := iscp.Decode(buf[:n])
		if !ok {
			d.Log.Debug().Str("src", src.String()).Int("bytes", n).Msg("Ignoring undecodable datagram")
			continue
		}

		udpSrc, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		dev, err := ParseReply(msg, udpSrc.IP)
		if err != nil {
			d.Log.Warn().Err(err).Str("src", src.String()).Msg("Ignoring malformed discovery reply")
			continue
		}

		dev.Interface = interfaceName(cm)

		d.Log.Info().
			Str("model", dev.Model).
			Str("address", dev.Address).
			Str("area", dev.Area).
			Str("mac", dev.MAC).
			Str("interface", dev.Interface).
			Msg("Device discovered")

		devices = append(devices, dev)
	}

	return devices, nil
}

// interfaceName resolves the receiving interface of a datagram, or returns
// "" when the platform gave no control message.
func interfaceName(cm *ipv4.ControlMessage) string {
	if cm == nil || cm.IfIndex == 0 {
		return ""
	}
	ifi, err := net.InterfaceByIndex(cm.IfIndex)
	if err != nil {
		return ""
	}
	return ifi.Name
}

func (d *Discoverer) targets() ([]net.IP, error) {
	if d.Targets == nil {
		return netif.BroadcastAddrs()
	}
	return d.Targets()
}

// Query returns the broadcast discovery query.
func Query() iscp.Message {
	m, err := iscp.NewBroadcast("ECN", "QSTN")
	if err != nil {
		panic(err)
	}
	return m
}

// ParseReply builds a Device from a discovery reply parameter of the form
// model/port/area/mac, addressed at the sender's IP.
func ParseReply(msg iscp.Message, sender net.IP) (device.Device, error) {
	fields := strings.Split(msg.Parameter(), separator)
	if len(fields) < 4 {
		return device.Device{}, fmt.Errorf("reply %q has %d fields, want 4", msg.Parameter(), len(fields))
	}
	model, port, area, mac := fields[0], fields[1], fields[2], fields[3]
	addr := net.JoinHostPort(sender.String(), port)
	return device.New(addr, model, area, mac), nil
}
