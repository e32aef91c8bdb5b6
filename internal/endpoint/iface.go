package endpoint

import "net/netip"

type hostInterface struct {
	Name  string
	Up    bool
	Addrs []netip.Addr
}

// listInterfaces is replaced in tests.
var listInterfaces = hostInterfaces

var tailscaleRanges = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("fd7a:115c:a1e0::/48"),
}

func isTailscaleAddr(a netip.Addr) bool {
	for _, p := range tailscaleRanges {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// selectAddr picks the address to bind for selector: the first IPv4 address
// of a matching up interface, else its first IPv6 address. Link-local
// addresses are skipped since they cannot be bound without a zone.
func selectAddr(ifaces []hostInterface, selector string) (netip.Addr, bool) {
	var v6 netip.Addr
	for _, ifc := range ifaces {
		if !ifc.Up {
			continue
		}
		if selector != TailscaleSelector && ifc.Name != selector {
			continue
		}
		for _, a := range ifc.Addrs {
			a = a.Unmap()
			if a.IsLinkLocalUnicast() {
				continue
			}
			if selector == TailscaleSelector && !isTailscaleAddr(a) {
				continue
			}
			if a.Is4() {
				return a, true
			}
			if !v6.IsValid() {
				v6 = a
			}
		}
	}
	return v6, v6.IsValid()
}
