//go:build linux

package endpoint

import (
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

func hostInterfaces() ([]hostInterface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, err
	}

	ifaces := make([]hostInterface, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			// The link went away between the two calls.
			continue
		}

		ifc := hostInterface{Name: attrs.Name, Up: attrs.Flags&net.FlagUp != 0}
		for _, a := range addrs {
			if a.IPNet == nil {
				continue
			}
			if ip, ok := netip.AddrFromSlice(a.IPNet.IP); ok {
				ifc.Addrs = append(ifc.Addrs, ip)
			}
		}
		ifaces = append(ifaces, ifc)
	}
	return ifaces, nil
}
