package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup and TCP connect. Zero means no limit.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the CONNECT exchange with an upstream proxy.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}
