package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/miekg/dns"
)

var ErrHostNotResolved = errors.New("host not resolved")

// ValidServiceURL reports whether s is a URL with both a scheme and a host.
func ValidServiceURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// HostResolver maps a host name to an IP address.
type HostResolver interface {
	ResolveHost(ctx context.Context, host string) (string, error)
}

// DNSResolver resolves A records against a single DNS server.
type DNSResolver struct {
	Server  string
	Timeout time.Duration
}

// NewDNSResolver uses the first nameserver from /etc/resolv.conf, falling
// back to the local stub resolver.
func NewDNSResolver() *DNSResolver {
	server := "127.0.0.53:53"
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
		server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	}
	return &DNSResolver{Server: server, Timeout: 2 * time.Second}
}

func (r *DNSResolver) ResolveHost(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	if host == "localhost" {
		return "127.0.0.1", nil
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	c := &dns.Client{Timeout: r.Timeout}
	in, _, err := c.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrHostNotResolved, host, err)
	}

	for _, answer := range in.Answer {
		if a, ok := answer.(*dns.A); ok {
			return a.A.String(), nil
		}
	}

	return "", fmt.Errorf("%w: %s: no A record", ErrHostNotResolved, host)
}

// NormalizeServiceURL rewrites the URL host to its IP address, keeping the
// scheme and port.
func NormalizeServiceURL(ctx context.Context, resolver HostResolver, serviceURL string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid service url %q", serviceURL)
	}

	ip, err := resolver.ResolveHost(ctx, u.Hostname())
	if err != nil {
		return "", err
	}

	host := ip
	if port := u.Port(); port != "" {
		host = net.JoinHostPort(ip, port)
	}
	return fmt.Sprintf("%s://%s", u.Scheme, host), nil
}

// SameServiceURL treats http://127.0.0.1:7101/ and http://localhost:7101 as
// the same service.
func SameServiceURL(ctx context.Context, resolver HostResolver, a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	na, err := NormalizeServiceURL(ctx, resolver, a)
	if err != nil {
		return false
	}
	nb, err := NormalizeServiceURL(ctx, resolver, b)
	if err != nil {
		return false
	}
	return na == nb
}
