// Package netif enumerates local IPv4 broadcast targets for discovery.
package netif

import (
	"fmt"
	"net"
	"slices"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// BroadcastAddrs returns the IPv4 broadcast address of every interface that
// is up and broadcast capable, in interface order.
func BroadcastAddrs() ([]net.IP, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	return broadcastAddrs(ifaces), nil
}

func broadcastAddrs(ifaces psnet.InterfaceStatList) []net.IP {
	var out []net.IP
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || !slices.Contains(iface.Flags, "broadcast") {
			continue
		}
		if slices.Contains(iface.Flags, "loopback") {
			continue
		}

		for _, addr := range iface.Addrs {
			_, ipNet, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				continue
			}
			if bcast := broadcastIP(ipNet); bcast != nil {
				out = append(out, bcast)
			}
		}
	}
	return out
}

// broadcastIP returns the directed broadcast address of an IPv4 network, or
// nil for IPv6.
func broadcastIP(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil {
		return nil
	}
	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	bcast := make(net.IP, net.IPv4len)
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}
