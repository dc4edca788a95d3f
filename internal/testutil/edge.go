package testutil

import (
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// EdgeHost is a name the httptest certificate is valid for.
const EdgeHost = "example.com"

// EdgeRequest records the routing headers of one upgrade request.
type EdgeRequest struct {
	Host     string
	Token    string
	Hostname string
	Port     string
}

// Edge is an in-process stand-in for the edge worker: a TLS WebSocket server
// that checks the Token header, connects to Hostname:Port and relays binary
// messages to and from that connection.
type Edge struct {
	*httptest.Server

	cfg      EdgeConfig
	upgrader websocket.Upgrader

	mu   sync.Mutex
	reqs []EdgeRequest
}

// EdgeConfig configures an Edge.
type EdgeConfig struct {
	Token string
	// Upstream, when set, is dialed instead of Hostname:Port.
	Upstream string
	// Preamble, when set, is sent as a text message before relaying.
	Preamble string
	// Abort drops the connection without a close message once the upstream
	// reaches EOF.
	Abort bool
}

// StartEdge starts an Edge.
func StartEdge(t *testing.T, cfg EdgeConfig) *Edge {
	t.Helper()

	e := &Edge{cfg: cfg}
	e.Server = httptest.NewUnstartedServer(http.HandlerFunc(e.serve))
	e.StartTLS()
	t.Cleanup(e.Close)
	return e
}

// IP returns the IP and port the edge listens on.
func (e *Edge) IP() (string, uint16) {
	addr := e.Listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), uint16(addr.Port)
}

// RootCAs returns a pool trusting the edge certificate.
func (e *Edge) RootCAs() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(e.Certificate())
	return pool
}

// Requests returns the upgrade requests seen so far.
func (e *Edge) Requests() []EdgeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]EdgeRequest(nil), e.reqs...)
}

func (e *Edge) serve(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "text/html;charset=UTF-8")
		_, _ = io.WriteString(w, "Nya!")
		return
	}

	e.mu.Lock()
	e.reqs = append(e.reqs, EdgeRequest{
		Host:     r.Host,
		Token:    r.Header.Get("Token"),
		Hostname: r.Header.Get("Hostname"),
		Port:     r.Header.Get("Port"),
	})
	e.mu.Unlock()

	if r.Header.Get("Token") != e.cfg.Token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	port, _ := strconv.Atoi(r.Header.Get("Port"))
	dst := net.JoinHostPort(r.Header.Get("Hostname"), strconv.Itoa(port))
	if e.cfg.Upstream != "" {
		dst = e.cfg.Upstream
	}
	up, err := net.Dial("tcp", dst)
	if err != nil {
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer up.Close()

	if e.cfg.Preamble != "" {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(e.cfg.Preamble)); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 32*1024)
		for {
			n, err := up.Read(buf)
			if n > 0 {
				if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				if e.cfg.Abort {
					_ = ws.UnderlyingConn().Close()
					return
				}
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}()

	for {
		mt, p, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if _, err := up.Write(p); err != nil {
			break
		}
	}
	_ = up.Close()
	<-done
}
