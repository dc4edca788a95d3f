package tunnel

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/achyuki/cfproxy/internal/socks5"
	"github.com/achyuki/cfproxy/internal/testutil"
)

func newTestConnector(t *testing.T, edge *testutil.Edge, mutate func(*Config)) *Connector {
	t.Helper()

	ip, port := edge.IP()
	cfg := Config{
		EdgeHost:         testutil.EdgeHost,
		EdgeIP:           ip,
		EdgePort:         port,
		Token:            "secret",
		RootCAs:          edge.RootCAs(),
		HandshakeTimeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewConnector(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func readMessage(t *testing.T, s *Session) []byte {
	t.Helper()

	r, err := s.NextBinary()
	if err != nil {
		t.Fatal(err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestConnectSendsRoutingHeaders(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	edge := testutil.StartEdge(t, testutil.EdgeConfig{Token: "secret", Upstream: echoLn.Addr().String()})
	c := newTestConnector(t, edge, nil)

	s, err := c.Connect(ctx, socks5.DomainTarget("example.com", 80))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.WriteBinary([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if got := readMessage(t, s); string(got) != "hello" {
		t.Fatalf("got %q want %q", got, "hello")
	}

	reqs := edge.Requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d upgrade requests want 1", len(reqs))
	}
	want := testutil.EdgeRequest{Host: testutil.EdgeHost, Token: "secret", Hostname: "example.com", Port: "80"}
	if reqs[0] != want {
		t.Fatalf("got %+v want %+v", reqs[0], want)
	}
}

func TestConnectTargetEncodings(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	edge := testutil.StartEdge(t, testutil.EdgeConfig{Token: "secret", Upstream: echoLn.Addr().String()})
	c := newTestConnector(t, edge, nil)

	targets := []socks5.Target{
		socks5.IPv4Target([4]byte{192, 168, 1, 1}, 0),
		socks5.IPv6Target([16]byte{15: 1}, 65535),
	}
	for _, target := range targets {
		s, err := c.Connect(ctx, target)
		if err != nil {
			t.Fatal(err)
		}
		_ = s.Close()
	}

	reqs := edge.Requests()
	if len(reqs) != len(targets) {
		t.Fatalf("got %d upgrade requests want %d", len(reqs), len(targets))
	}
	for i, target := range targets {
		if reqs[i].Hostname != target.Host() || reqs[i].Port != strconv.Itoa(int(target.Port())) {
			t.Fatalf("request %d: got %s:%s want %s", i, reqs[i].Hostname, reqs[i].Port, target)
		}
	}
	if reqs[1].Hostname != "::1" {
		t.Fatalf("ipv6 hostname: got %q", reqs[1].Hostname)
	}
}

func TestConnectSkipsTextMessages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	edge := testutil.StartEdge(t, testutil.EdgeConfig{Token: "secret", Upstream: echoLn.Addr().String(), Preamble: "ignored"})
	c := newTestConnector(t, edge, nil)

	s, err := c.Connect(ctx, socks5.DomainTarget("example.com", 80))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.WriteBinary([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if got := readMessage(t, s); string(got) != "ping" {
		t.Fatalf("got %q want %q", got, "ping")
	}
}

func TestSessionCloseMessageIsEOF(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	upLn, wait := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = io.WriteString(c, "bye")
	})
	defer wait()

	edge := testutil.StartEdge(t, testutil.EdgeConfig{Token: "secret", Upstream: upLn.Addr().String()})
	c := newTestConnector(t, edge, nil)

	s, err := c.Connect(ctx, socks5.DomainTarget("example.com", 80))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := readMessage(t, s); string(got) != "bye" {
		t.Fatalf("got %q want %q", got, "bye")
	}
	if _, err := s.NextBinary(); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v want io.EOF", err)
	}
}

func TestSessionDroppedConnectionIsError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	upLn, wait := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = io.WriteString(c, "partial")
	})
	defer wait()

	edge := testutil.StartEdge(t, testutil.EdgeConfig{Token: "secret", Upstream: upLn.Addr().String(), Abort: true})
	c := newTestConnector(t, edge, nil)

	s, err := c.Connect(ctx, socks5.DomainTarget("example.com", 80))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if got := readMessage(t, s); string(got) != "partial" {
		t.Fatalf("got %q want %q", got, "partial")
	}
	_, err = s.NextBinary()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("got %v want a non-EOF error", err)
	}
}

func TestConnectFailures(t *testing.T) {
	edge := testutil.StartEdge(t, testutil.EdgeConfig{Token: "secret"})

	tests := []struct {
		name       string
		mutate     func(*Config)
		wantStage  string
		wantStatus int
	}{
		{
			name:       "bad token",
			mutate:     func(c *Config) { c.Token = "wrong" },
			wantStage:  StageUpgrade,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:      "hostname mismatch",
			mutate:    func(c *Config) { c.EdgeHost = "wrong.invalid" },
			wantStage: StageTLS,
		},
		{
			name:      "untrusted certificate",
			mutate:    func(c *Config) { c.RootCAs = nil },
			wantStage: StageTLS,
		},
		{
			name: "connection refused",
			mutate: func(c *Config) {
				host, port, _ := net.SplitHostPort(testutil.ClosedAddr(t))
				p, _ := strconv.Atoi(port)
				c.EdgeIP, c.EdgePort = host, uint16(p)
			},
			wantStage: StageDial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			c := newTestConnector(t, edge, tt.mutate)
			s, err := c.Connect(ctx, socks5.DomainTarget("example.com", 80))
			if err == nil {
				_ = s.Close()
				t.Fatal("expected error")
			}

			var te *Error
			if !errors.As(err, &te) {
				t.Fatalf("got %T %v want *Error", err, err)
			}
			if te.Stage != tt.wantStage {
				t.Fatalf("stage: got %q want %q (%v)", te.Stage, tt.wantStage, err)
			}
			if te.Status != tt.wantStatus {
				t.Fatalf("status: got %d want %d", te.Status, tt.wantStatus)
			}
		})
	}
}

func TestNewConnector(t *testing.T) {
	if _, err := NewConnector(Config{EdgeIP: "127.0.0.1"}); err == nil {
		t.Fatal("expected error for missing edge host")
	}
	if _, err := NewConnector(Config{EdgeHost: "example.com"}); err == nil {
		t.Fatal("expected error for missing edge ip")
	}

	c, err := NewConnector(Config{EdgeHost: "example.com", EdgeIP: "104.16.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Addr() != "104.16.0.0:443" {
		t.Fatalf("got %q", c.Addr())
	}
	if c.url != "wss://example.com/" {
		t.Fatalf("got %q", c.url)
	}
}
