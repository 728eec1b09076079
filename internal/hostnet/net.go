package hostnet

import (
	"net"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
)

// Net is the link/address manipulation contract used by the Radio
// Abstraction and the Gateway Bridge. The production implementation wraps
// vishvananda/netlink (grounded on ap_common/netctl.linkOp's
// AddrAdd/LinkSetUp/LinkSetDown pattern); tests supply a fake.
type Net interface {
	LinkUp(iface string) error
	LinkDown(iface string) error
	IsUp(iface string) (bool, error)
	AddrAdd(iface, cidr string) error
	AddrFlush(iface string) error
}

// NetlinkNet is the production Net implementation.
type NetlinkNet struct{}

// LinkUp brings the named interface administratively up.
func (NetlinkNet) LinkUp(iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(err, "lookup link %s", iface)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return errors.Wrapf(err, "set %s up", iface)
	}
	return nil
}

// LinkDown brings the named interface administratively down.
func (NetlinkNet) LinkDown(iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(err, "lookup link %s", iface)
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return errors.Wrapf(err, "set %s down", iface)
	}
	return nil
}

// IsUp reports whether the named interface is administratively up. Any
// failure to determine the state reads as "not up", per spec §4.1.
func (NetlinkNet) IsUp(iface string) (bool, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return false, errors.Wrapf(err, "lookup link %s", iface)
	}
	return link.Attrs().Flags&net.FlagUp != 0, nil
}

// AddrAdd assigns a CIDR address to the named interface.
func (NetlinkNet) AddrAdd(iface, cidr string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(err, "lookup link %s", iface)
	}
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return errors.Wrapf(err, "parse address %s", cidr)
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return errors.Wrapf(err, "add %s to %s", cidr, iface)
	}
	return nil
}

// AddrFlush removes every address currently assigned to the named
// interface.
func (NetlinkNet) AddrFlush(iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(err, "lookup link %s", iface)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return errors.Wrapf(err, "list addresses on %s", iface)
	}
	for _, a := range addrs {
		if err := netlink.AddrDel(link, &a); err != nil {
			return errors.Wrapf(err, "delete %s from %s", a.IPNet, iface)
		}
	}
	return nil
}
