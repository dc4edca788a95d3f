package tunnel

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/achyuki/cfproxy/internal/dialer"
	"github.com/achyuki/cfproxy/internal/socks5"
)

// DefaultEdgePort is the port dialed on the edge IP when none is configured.
const DefaultEdgePort = 443

// Config describes how to reach the edge.
type Config struct {
	// EdgeHost is the edge hostname: TLS server name, Host header and URL host.
	EdgeHost string
	// EdgeIP is the address actually dialed.
	EdgeIP   string
	EdgePort uint16
	Token    string

	// RootCAs verifies the edge certificate. Nil uses the system roots.
	RootCAs *x509.CertPool

	// HandshakeTimeout bounds dial, TLS and upgrade together. Zero means no limit.
	HandshakeTimeout time.Duration

	// Dialer opens the TCP leg. Nil dials directly.
	Dialer dialer.Dialer
}

// Connector establishes tunnels. It is safe for concurrent use; the TLS
// configuration and session cache are shared by all tunnels.
type Connector struct {
	cfg       Config
	addr      string
	url       string
	tlsConfig *tls.Config
	dialer    dialer.Dialer
}

// NewConnector validates cfg and returns a Connector.
func NewConnector(cfg Config) (*Connector, error) {
	if cfg.EdgeHost == "" {
		return nil, errors.New("tunnel: missing edge host")
	}
	if cfg.EdgeIP == "" {
		return nil, errors.New("tunnel: missing edge ip")
	}
	if cfg.EdgePort == 0 {
		cfg.EdgePort = DefaultEdgePort
	}

	d := cfg.Dialer
	if d == nil {
		d = dialer.NewDirectDialer(dialer.Config{})
	}

	u := url.URL{Scheme: "wss", Host: cfg.EdgeHost, Path: "/"}

	return &Connector{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.EdgeIP, strconv.Itoa(int(cfg.EdgePort))),
		url:  u.String(),
		tlsConfig: &tls.Config{
			ServerName:         cfg.EdgeHost,
			RootCAs:            cfg.RootCAs,
			MinVersion:         tls.VersionTLS12,
			NextProtos:         []string{"http/1.1"},
			ClientSessionCache: tls.NewLRUClientSessionCache(0),
		},
		dialer: d,
	}, nil
}

// Addr returns the edge address that is dialed.
func (c *Connector) Addr() string {
	return c.addr
}

// Connect opens a tunnel to the edge asking it to connect to target. Every
// failure is returned as an *Error; nothing is retried.
func (c *Connector) Connect(ctx context.Context, target socks5.Target) (*Session, error) {
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	d := websocket.Dialer{
		NetDialTLSContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return c.dialTLS(ctx)
		},
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 32 * 1024,
	}

	header := http.Header{
		"Host":     {c.cfg.EdgeHost},
		"Token":    {c.cfg.Token},
		"Hostname": {target.Host()},
		"Port":     {strconv.Itoa(int(target.Port()))},
	}

	ws, resp, err := d.DialContext(ctx, c.url, header)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			return nil, te
		}
		e := &Error{Stage: StageUpgrade, Err: err}
		if resp != nil {
			e.Status = resp.StatusCode
		}
		return nil, e
	}

	return &Session{ws: ws}, nil
}

func (c *Connector) dialTLS(ctx context.Context) (net.Conn, error) {
	raw, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, &Error{Stage: StageDial, Err: err}
	}

	tc := tls.Client(raw, c.tlsConfig)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, &Error{Stage: StageTLS, Err: err}
	}
	return tc, nil
}
