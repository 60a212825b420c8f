package common

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address from RemoteAddr without its port.
// Forwarding headers are not consulted here; the router's RealIP middleware
// has already folded them into RemoteAddr. IPv4-mapped IPv6 addresses are
// reduced to their IPv4 form so one client maps to one key.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	raw := strings.TrimSpace(r.RemoteAddr)
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap().String()
	}
	if addr, err := netip.ParseAddr(strings.Trim(raw, "[]")); err == nil {
		return addr.Unmap().String()
	}
	return raw
}
