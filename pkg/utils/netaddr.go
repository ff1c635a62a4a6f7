package utils

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrBlockedAddress is returned for destinations inside private or host-local networks.
var ErrBlockedAddress = errors.New("destination address is not allowed")

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// PublicAddr rejects loopback, private, link-local, unspecified, multicast and
// carrier-grade NAT addresses, so server-side fetches cannot reach internal hosts
// or cloud metadata endpoints.
func PublicAddr(ip netip.Addr) error {
	ip = ip.Unmap()
	if !ip.IsValid() || ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	for _, p := range blockedPrefixes {
		if p.Contains(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
		}
	}
	return nil
}

// PublicHost rejects host when it is a literal IP that PublicAddr refuses. Names
// pass; they are checked again once resolved.
func PublicHost(host string) error {
	ip, err := netip.ParseAddr(host)
	if err != nil {
		if host == "localhost" {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
		}
		return nil
	}
	return PublicAddr(ip)
}
