package research

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	errContextURLScheme = errors.New("context url must be http or https")
	errContextURLHost   = errors.New("context url host is not reachable from here")
	errContextURLPort   = errors.New("context url port is not allowed")
)

// validateContextURL accepts public http(s) URLs on the default ports.
func validateContextURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse context url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, errContextURLScheme
	}
	if parsed.User != nil {
		return nil, errContextURLHost
	}
	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" || hostBlocked(host) {
		return nil, errContextURLHost
	}
	switch parsed.Port() {
	case "", "80", "443":
	default:
		return nil, errContextURLPort
	}
	return parsed, nil
}

func hostBlocked(host string) bool {
	if host == "localhost" {
		return true
	}
	for _, suffix := range []string{".localhost", ".local", ".internal"} {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return !publicAddr(addr)
	}
	return false
}

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() || addr.IsLoopback() || addr.IsPrivate() {
		return false
	}
	if addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return false
	}
	return true
}

// guardedDialContext resolves the host itself and refuses to connect when any
// resolved address is not public, so redirects and DNS tricks cannot reach
// internal services.
func guardedDialContext(dialer *net.Dialer) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		if hostBlocked(strings.ToLower(host)) {
			return nil, errContextURLHost
		}
		addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, err
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("no addresses for %q", host)
		}
		for _, addr := range addrs {
			if !publicAddr(addr) {
				return nil, errContextURLHost
			}
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
	}
}
