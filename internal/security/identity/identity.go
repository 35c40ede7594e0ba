// Package identity derives the per-client key used for rate limiting.
package identity

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ForwardedForHeader carries the client chain appended by reverse proxies.
const ForwardedForHeader = "X-Forwarded-For"

// TrustedProxies is an ordered set of networks whose forwarding headers are
// believed.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses CIDR blocks or bare IPs. A bare IP is treated as
// a single-host network.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	proxies := make(TrustedProxies, 0, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: not an IP or CIDR", entry)
			}
			bits := 128
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 32
			}
			network = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		proxies = append(proxies, network)
	}
	return proxies, nil
}

// Contains reports whether ip belongs to any trusted network.
func (p TrustedProxies) Contains(ip net.IP) bool {
	for _, network := range p {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Strings renders the networks in CIDR form.
func (p TrustedProxies) Strings() []string {
	out := make([]string, 0, len(p))
	for _, network := range p {
		out = append(out, network.String())
	}
	return out
}

// Resolver maps a request to a stable client key.
type Resolver struct {
	trusted TrustedProxies
}

// NewResolver creates a resolver. With no trusted proxies the key is always
// the direct peer address.
func NewResolver(trusted TrustedProxies) *Resolver {
	return &Resolver{trusted: trusted}
}

// Resolve returns the client key for r. The first X-Forwarded-For hop is used
// only when the direct peer is a trusted proxy and the hop is a valid IP.
func (res *Resolver) Resolve(r *http.Request) string {
	peer := peerAddress(r.RemoteAddr)
	if res == nil || len(res.trusted) == 0 {
		return peer
	}

	peerIP := net.ParseIP(peer)
	if peerIP == nil || !res.trusted.Contains(peerIP) {
		return peer
	}

	xff := r.Header.Get(ForwardedForHeader)
	if xff == "" {
		return peer
	}
	first := xff
	if idx := strings.IndexByte(xff, ','); idx >= 0 {
		first = xff[:idx]
	}
	ip := net.ParseIP(strings.TrimSpace(first))
	if ip == nil {
		return peer
	}
	return ip.String()
}

// peerAddress strips the port from a RemoteAddr. Unparseable values are
// returned unchanged so distinct peers stay distinct.
func peerAddress(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
