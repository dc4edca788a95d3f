package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP opens the client-facing listener. On Linux the kernel holds new
// connections until the client has sent its greeting. Accepted connections
// get ka applied.
func ListenTCP(ctx context.Context, network, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: listenControl}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}
	return &KeepAliveListener{Listener: ln, KeepAliveConfig: ka}, nil
}

// KeepAliveListener sets KeepAliveConfig on every TCP connection it accepts.
// Accept errors and non-TCP connections pass through unchanged.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if tc, ok := conn.(*net.TCPConn); ok && err == nil {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}
	return conn, err
}
