package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Dialer opens the TCP connection to the edge. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// defaultPorts are applied when an upstream URL has a host but no port.
var defaultPorts = map[string]string{
	"http":    "80",
	"https":   "443",
	"socks5":  "1080",
	"socks5h": "1080",
}

// New returns the Dialer described by upstream:
//
//	direct://
//	http://[user:pass@]host[:port]
//	https://[user:pass@]host[:port]
//	socks5://[user:pass@]host[:port]   (socks5h:// is accepted as an alias)
func New(cfg Config, upstream string) (Dialer, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)

	if u.Scheme == "" {
		return nil, errors.New("invalid upstream: missing scheme")
	}
	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid upstream: path should be empty")
	}
	if u.Scheme == "direct" {
		return NewDirectDialer(cfg), nil
	}

	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("invalid upstream scheme: %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("invalid upstream: missing host")
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}

	user := u.User.Username()
	pass, _ := u.User.Password()

	if strings.HasPrefix(u.Scheme, "socks5") {
		return NewSOCKS5ProxyDialer(cfg, u.Host, user, pass), nil
	}
	return NewHTTPProxyDialer(cfg, u, user, pass)
}
