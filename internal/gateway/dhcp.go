package gateway

import (
	"math/rand"
	"net"
	"time"

	dhcp "github.com/krolaw/dhcp4"
)

// leaseHandler is a single-range DHCPv4 handler, trimmed from
// ap.dhcp4d/dhcp4d.go's DHCPHandler down to the single bounded range the
// Gateway Bridge needs — no rings, no VLANs, one subnet.
type leaseHandler struct {
	serverIP   net.IP
	subnet     net.IPNet
	rangeStart net.IP
	rangeSize  int
	duration   time.Duration
	options    dhcp.Options

	leases []lease
}

type lease struct {
	hwaddr   string
	ipaddr   net.IP
	expires  time.Time
	assigned bool
}

func newLeaseHandler(serverIP net.IP, subnet net.IPNet, rangeStart net.IP, rangeSize int, duration time.Duration) *leaseHandler {
	return &leaseHandler{
		serverIP: serverIP, subnet: subnet, rangeStart: rangeStart,
		rangeSize: rangeSize, duration: duration,
		options: dhcp.Options{
			dhcp.OptionSubnetMask:       subnet.Mask,
			dhcp.OptionRouter:           serverIP,
			dhcp.OptionDomainNameServer: serverIP,
		},
		leases: make([]lease, rangeSize),
	}
}

// ServeDHCP implements dhcp.Handler, mirroring DHCPHandler.ServeDHCP's
// discover/request/release/decline dispatch.
func (h *leaseHandler) ServeDHCP(p dhcp.Packet, msgType dhcp.MessageType, options dhcp.Options) dhcp.Packet {
	switch msgType {
	case dhcp.Discover:
		return h.discover(p, options)
	case dhcp.Request:
		return h.request(p, options)
	case dhcp.Release, dhcp.Decline:
		h.release(p)
	}
	return nil
}

func (h *leaseHandler) discover(p dhcp.Packet, options dhcp.Options) dhcp.Packet {
	hwaddr := p.CHAddr().String()
	l := h.assign(hwaddr)
	if l == nil {
		return dhcp.ReplyPacket(p, dhcp.NAK, h.serverIP, nil, 0, nil)
	}
	return dhcp.ReplyPacket(p, dhcp.Offer, h.serverIP, l.ipaddr, h.duration,
		h.options.SelectOrderOrAll(options[dhcp.OptionParameterRequestList]))
}

func (h *leaseHandler) request(p dhcp.Packet, options dhcp.Options) dhcp.Packet {
	if server, ok := options[dhcp.OptionServerIdentifier]; ok && !net.IP(server).Equal(h.serverIP) {
		return nil // request was for a different DHCP server
	}
	hwaddr := p.CHAddr().String()
	l := h.assign(hwaddr)
	if l == nil {
		return dhcp.ReplyPacket(p, dhcp.NAK, h.serverIP, nil, 0, nil)
	}
	return dhcp.ReplyPacket(p, dhcp.ACK, h.serverIP, l.ipaddr, h.duration,
		h.options.SelectOrderOrAll(options[dhcp.OptionParameterRequestList]))
}

func (h *leaseHandler) release(p dhcp.Packet) {
	hwaddr := p.CHAddr().String()
	for i := range h.leases {
		if h.leases[i].assigned && h.leases[i].hwaddr == hwaddr {
			h.leases[i].assigned = false
		}
	}
}

// assign returns hwaddr's existing lease if any, otherwise picks a random
// free slot, matching DHCPHandler.leaseAssign's random-free-slot policy.
func (h *leaseHandler) assign(hwaddr string) *lease {
	now := time.Now()
	for i := range h.leases {
		if h.leases[i].assigned && h.leases[i].expires.Before(now) {
			h.leases[i].assigned = false
		}
		if h.leases[i].assigned && h.leases[i].hwaddr == hwaddr {
			return &h.leases[i]
		}
	}

	free := -1
	target := rand.Intn(h.rangeSize)
	for i := 0; i < h.rangeSize; i++ {
		idx := (target + i) % h.rangeSize
		if !h.leases[idx].assigned {
			free = idx
			break
		}
	}
	if free < 0 {
		return nil
	}
	h.leases[free] = lease{
		hwaddr:   hwaddr,
		ipaddr:   dhcp.IPAdd(h.rangeStart, free),
		expires:  now.Add(h.duration),
		assigned: true,
	}
	return &h.leases[free]
}
