package urlutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
)

// NewGuardedTransport returns an http.Transport whose DialContext resolves
// the target host itself and rejects private/reserved IPs before
// connecting, closing the DNS-rebinding gap that checking the hostname
// alone leaves open. Used by outbound fetchers that hit operator-supplied
// URLs (sitemap discovery, report webhooks) rather than fixed, trusted
// endpoints.
func NewGuardedTransport() *http.Transport {
	dialer := &net.Dialer{}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid dial address %q: %w", addr, err)
		}

		if err := ValidateHostNotPrivateIP(host); err != nil {
			return nil, err
		}

		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed for %s: %w", host, err)
		}
		var dialIP net.IP
		for _, ip := range ips {
			if err := ValidateResolvedIP(ip); err != nil {
				return nil, err
			}
			if dialIP == nil {
				dialIP = ip
			}
		}
		if dialIP == nil {
			return nil, fmt.Errorf("no addresses resolved for %s", host)
		}

		// Dial the IP we just validated, not the hostname — resolving the
		// hostname again here would let a second, unvalidated DNS answer
		// (e.g. from a rebinding attacker) slip past the checks above.
		return dialer.DialContext(ctx, network, net.JoinHostPort(dialIP.String(), port))
	}
	return transport
}
