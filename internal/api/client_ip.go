package api

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"

	"newsroom/internal/account"
	"newsroom/internal/constants"
)

// ClientIPResolver identifies the caller for the access log and the rate
// limiter. X-Forwarded-For and X-Real-IP are honored only when the direct
// peer falls inside a trusted proxy prefix.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver accepts CIDR prefixes or bare addresses.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}

	for _, raw := range trustedProxies {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}

		prefix, err := parseTrustedPrefix(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		resolver.trusted = append(resolver.trusted, prefix)
	}

	return resolver, nil
}

func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer, ok := parseRemoteAddr(req.RemoteAddr)
	if !ok {
		return "unknown"
	}

	if r.trustedPeer(peer) {
		if addr, ok := firstForwardedAddr(req.Header.Get("X-Forwarded-For")); ok {
			return addr.String()
		}
		if addr, ok := parseAddr(req.Header.Get("X-Real-IP")); ok {
			return addr.String()
		}
	}

	return peer.String()
}

// ClientInfo returns the resolved IP and a length-bounded user agent.
func (r *ClientIPResolver) ClientInfo(req *http.Request) account.ClientInfo {
	return account.ClientInfo{
		IP:        r.Resolve(req),
		UserAgent: truncateUserAgent(req.UserAgent()),
	}
}

func (r *ClientIPResolver) trustedPeer(addr netip.Addr) bool {
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseTrustedPrefix(value string) (netip.Prefix, error) {
	if strings.Contains(value, "/") {
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return netip.Prefix{}, err
		}
		if prefix.Addr().Is4In6() {
			return netip.Prefix{}, fmt.Errorf("use the plain IPv4 form")
		}
		return prefix.Masked(), nil
	}

	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// firstForwardedAddr returns the left-most parseable entry, which is the
// client as seen by the outermost proxy.
func firstForwardedAddr(header string) (netip.Addr, bool) {
	for part := range strings.SplitSeq(header, ",") {
		if addr, ok := parseAddr(part); ok {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	if addrPort, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	return parseAddr(remoteAddr)
}

// parseAddr accepts a bare address, an address with a port, or either form
// wrapped in double quotes.
func parseAddr(value string) (netip.Addr, bool) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return netip.Addr{}, false
	}

	if addr, err := netip.ParseAddr(value); err == nil {
		return addr.Unmap(), true
	}
	if addrPort, err := netip.ParseAddrPort(value); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}

func truncateUserAgent(ua string) string {
	if len(ua) <= constants.UserAgentMaxLength {
		return ua
	}
	ua = ua[:constants.UserAgentMaxLength]
	for !utf8.ValidString(ua) {
		ua = ua[:len(ua)-1]
	}
	return ua
}
