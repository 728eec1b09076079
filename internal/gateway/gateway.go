// Package gateway implements the Gateway Bridge (spec §4.9): configures
// NAT and a DHCP server publishing one chosen uplink to the LAN port.
// Bind is the only interesting operation; every failure path rolls back
// whatever had already been applied. Unbind restores the IP-forwarding
// setting saved at Bind; the packet filter and the Ethernet interface's
// addresses are flushed rather than restored, so rules or addresses that
// existed before Bind are not put back.
package gateway

import (
	"net"
	"strings"
	"sync"
	"time"

	dhcp "github.com/krolaw/dhcp4"
	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/hostnet"
	"github.com/metahertz/vasili/internal/vasilierr"
)

// Well-known RFC1918 block the bridge assigns to the chosen Ethernet
// interface, matching vasili.py's NetworkBridge.setup_nat default range.
const (
	lanCIDR      = "192.168.77.1/24"
	leaseRangeSz = 50
	leaseTime    = 12 * time.Hour
)

// EthernetLister enumerates candidate host Ethernet-like interface names,
// in host order; Bind uses the first name returned.
type EthernetLister func() ([]string, error)

// ethernetPrefixes recognizes the common Linux wired naming schemes
// (predictable enpXsY, classic ethN), the wired counterpart of
// radiopool's wirelessPrefixes filter.
var ethernetPrefixes = []string{"eth", "enp", "eno", "ens"}

// SystemEthernetInterfaces lists host interfaces whose name matches a
// recognized wired naming scheme.
func SystemEthernetInterfaces() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ifc := range ifaces {
		for _, p := range ethernetPrefixes {
			if strings.HasPrefix(ifc.Name, p) {
				names = append(names, ifc.Name)
				break
			}
		}
	}
	return names, nil
}

// Bridge is the Gateway Bridge.
type Bridge struct {
	log       *zap.Logger
	net       hostnet.Net
	firewall  hostnet.Firewall
	ipForward hostnet.IPForwarding
	ethList   EthernetLister
	dhcpStart func(eth string) (net.PacketConn, error)

	mu    sync.Mutex
	bound *binding
}

type binding struct {
	conn            catalog.Connection
	ethIface        string
	priorForwarding bool
	dhcpConn        net.PacketConn
}

// New returns a Bridge with no active binding.
func New(log *zap.Logger, netImpl hostnet.Net, firewall hostnet.Firewall, ipForward hostnet.IPForwarding, ethList EthernetLister) *Bridge {
	b := &Bridge{log: log, net: netImpl, firewall: firewall, ipForward: ipForward, ethList: ethList}
	b.dhcpStart = b.startDHCP
	return b
}

// Current returns the currently bound Connection, if any, implementing
// selector.Binder.
func (b *Bridge) Current() (catalog.Connection, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bound == nil {
		return catalog.Connection{}, false
	}
	return b.bound.conn, true
}

// Bind configures NAT and DHCP so conn's radio becomes the published
// uplink. If a binding already exists it is torn down first — there is
// never more than one. On any later failure, every step this call applied
// is rolled back; a binding torn down at the start is not re-established.
func (b *Bridge) Bind(conn catalog.Connection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound != nil {
		if err := b.unbindLocked(); err != nil {
			return err
		}
	}

	eth, err := b.pickEthernet()
	if err != nil {
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "select ethernet interface")
	}

	priorForwarding, _ := b.ipForward.Get()

	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	if err := b.ipForward.Set(true); err != nil {
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "enable ip forwarding")
	}
	undo = append(undo, func() { _ = b.ipForward.Set(priorForwarding) })

	if err := b.firewall.Flush(); err != nil {
		rollback()
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "flush firewall")
	}
	undo = append(undo, func() { _ = b.firewall.Flush() })
	if err := b.firewall.Masquerade(conn.Radio); err != nil {
		rollback()
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "install masquerade rule")
	}
	if err := b.firewall.ForwardUnconditional(eth, conn.Radio); err != nil {
		rollback()
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "install forward rule eth->wifi")
	}
	if err := b.firewall.ForwardEstablished(conn.Radio, eth); err != nil {
		rollback()
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "install forward rule wifi->eth")
	}

	if err := b.net.AddrAdd(eth, lanCIDR); err != nil {
		rollback()
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "assign lan address")
	}
	undo = append(undo, func() { _ = b.net.AddrFlush(eth) })

	if err := b.net.LinkUp(eth); err != nil {
		rollback()
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "bring up "+eth)
	}
	undo = append(undo, func() { _ = b.net.LinkDown(eth) })

	dhcpConn, err := b.dhcpStart(eth)
	if err != nil {
		rollback()
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "start dhcp server")
	}

	b.bound = &binding{conn: conn, ethIface: eth, priorForwarding: priorForwarding, dhcpConn: dhcpConn}
	return nil
}

// Unbind reverses a prior Bind: stops DHCP, restores IP-forwarding, brings
// the Ethernet interface down, and flushes the packet filter. Idempotent:
// calling it with no active binding is a no-op.
func (b *Bridge) Unbind() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unbindLocked()
}

func (b *Bridge) unbindLocked() error {
	if b.bound == nil {
		return nil
	}
	bound := b.bound
	b.bound = nil

	if bound.dhcpConn != nil {
		_ = bound.dhcpConn.Close()
	}
	_ = b.net.AddrFlush(bound.ethIface)
	_ = b.net.LinkDown(bound.ethIface)
	_ = b.firewall.Flush()
	if err := b.ipForward.Set(bound.priorForwarding); err != nil {
		return vasilierr.Wrap(vasilierr.GatewayBindFail, err, "restore ip forwarding")
	}
	return nil
}

func (b *Bridge) pickEthernet() (string, error) {
	names, err := b.ethList()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", vasilierr.New(vasilierr.GatewayBindFail, "no ethernet-like host interface available")
	}
	return names[0], nil
}

func (b *Bridge) startDHCP(eth string) (net.PacketConn, error) {
	ip, ipnet, err := net.ParseCIDR(lanCIDR)
	if err != nil {
		return nil, err
	}
	rangeStart := dhcp.IPAdd(ip, 9) // .10 onward, leaving .1-.9 reserved
	handler := newLeaseHandler(ip, net.IPNet{IP: ip.Mask(ipnet.Mask), Mask: ipnet.Mask}, rangeStart, leaseRangeSz, leaseTime)

	conn, err := net.ListenPacket("udp4", ":67")
	if err != nil {
		return nil, err
	}

	go func() {
		if err := dhcp.Serve(conn, handler); err != nil && b.log != nil {
			b.log.Debug("dhcp server stopped", zap.String("interface", eth), zap.Error(err))
		}
	}()

	return conn, nil
}
