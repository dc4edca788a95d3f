package proxy

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/achyuki/cfproxy/internal/socks5"
	"github.com/achyuki/cfproxy/internal/tunnel"
)

// Connector opens a tunnel to the edge for one target.
type Connector interface {
	Connect(ctx context.Context, target socks5.Target) (*tunnel.Session, error)
}

type Config struct {
	// Auth holds the credentials clients may authenticate with.
	Auth socks5.Auth

	// ReplyAfterConnect defers the CONNECT success reply until the tunnel is
	// up, and sends a refusal when it fails. By default the reply is sent as
	// soon as the request is decoded.
	ReplyAfterConnect bool

	// NegotiationTimeout bounds everything before the relay starts. Zero
	// means no limit.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	Connector Connector

	Logger logrus.FieldLogger
}
