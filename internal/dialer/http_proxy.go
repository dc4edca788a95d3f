package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProxyDialer opens tunnels through an HTTP or HTTPS proxy with CONNECT.
type HTTPProxyDialer struct {
	cfg      Config
	proxyURL *url.URL
	header   http.Header
	direct   Dialer
}

// NewHTTPProxyDialer returns a dialer for proxyURL. A non-empty username is
// sent as Basic Proxy-Authorization.
func NewHTTPProxyDialer(cfg Config, proxyURL *url.URL, username, password string) (*HTTPProxyDialer, error) {
	switch {
	case proxyURL == nil:
		return nil, errors.New("http upstream: missing proxy url")
	case proxyURL.Hostname() == "":
		return nil, errors.New("http upstream: invalid proxy host")
	case proxyURL.Scheme != "http" && proxyURL.Scheme != "https":
		return nil, fmt.Errorf("http upstream: unsupported scheme %q", proxyURL.Scheme)
	}

	header := make(http.Header)
	if username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		header.Set("Proxy-Authorization", "Basic "+cred)
	}

	return &HTTPProxyDialer{
		cfg:      cfg,
		proxyURL: proxyURL,
		header:   header,
		direct:   NewDirectDialer(cfg),
	}, nil
}

// ProxyAddr returns the proxy host:port.
func (f *HTTPProxyDialer) ProxyAddr() string {
	return f.proxyURL.Host
}

// DialContext returns a connection to address tunneled through the proxy.
// NegotiationTimeout, when set, bounds the TLS handshake with an https proxy
// and the CONNECT exchange; cancelling ctx aborts either.
func (f *HTTPProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("http upstream dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, network, f.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("http upstream: %w", err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(time.Unix(1, 0))
	})

	nc, err := f.negotiate(ctx, c, address)
	if !stop() {
		if err == nil {
			_ = nc.Close()
		}
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("http upstream dial %s: %w", address, err)
	}

	_ = nc.SetDeadline(time.Time{})
	return nc, nil
}

// negotiate wraps c in TLS for https proxies and runs CONNECT. It closes c on
// failure.
func (f *HTTPProxyDialer) negotiate(ctx context.Context, c net.Conn, address string) (net.Conn, error) {
	if f.proxyURL.Scheme == "https" {
		tc := tls.Client(c, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: f.proxyURL.Hostname()})
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		c = tc
	}

	if err := f.connect(c, address); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (f *HTTPProxyDialer) connect(c net.Conn, address string) error {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: f.header.Clone(),
	}
	if err := req.Write(c); err != nil {
		return fmt.Errorf("write CONNECT: %w", err)
	}

	br := bufio.NewReader(c)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return fmt.Errorf("read CONNECT response: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("CONNECT refused: %s", resp.Status)
	}
	// Anything buffered past the response would be lost with br.
	if br.Buffered() > 0 {
		return errors.New("CONNECT: unexpected data after response")
	}
	return nil
}
