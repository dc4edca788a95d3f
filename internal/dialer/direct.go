package dialer

import (
	"context"
	"net"
)

type directDialer struct {
	d net.Dialer
}

// NewDirectDialer returns a Dialer that connects without any upstream proxy.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{d: net.Dialer{
		Timeout:         cfg.DialTimeout,
		KeepAliveConfig: cfg.KeepAlive,
	}}
}

// DialContext returns the *net.OpError from net.Dialer unwrapped; it already
// names the network and address.
func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f.d.DialContext(ctx, network, address)
}
