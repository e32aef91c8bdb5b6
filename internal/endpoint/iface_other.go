//go:build !linux

package endpoint

import (
	"net"
	"net/netip"
)

func hostInterfaces() ([]hostInterface, error) {
	nifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	ifaces := make([]hostInterface, 0, len(nifs))
	for _, nif := range nifs {
		addrs, err := nif.Addrs()
		if err != nil {
			continue
		}

		ifc := hostInterface{Name: nif.Name, Up: nif.Flags&net.FlagUp != 0}
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip, ok := netip.AddrFromSlice(ipn.IP); ok {
				ifc.Addrs = append(ifc.Addrs, ip)
			}
		}
		ifaces = append(ifaces, ifc)
	}
	return ifaces, nil
}
