package tunnel

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const closeTimeout = time.Second

// Session is an established tunnel. One goroutine may send with WriteBinary
// while another receives with NextBinary; Close may be called from any
// goroutine.
type Session struct {
	ws *websocket.Conn
}

// WriteBinary sends p as one binary message.
func (s *Session) WriteBinary(p []byte) error {
	return s.ws.WriteMessage(websocket.BinaryMessage, p)
}

// NextBinary returns a reader for the payload of the next binary message.
// Other data messages are skipped. After the edge sends a close message it
// returns io.EOF; a connection lost without one is reported as an error.
func (s *Session) NextBinary() (io.Reader, error) {
	for {
		mt, r, err := s.ws.NextReader()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return r, nil
		}
	}
}

// RemoteAddr returns the edge address of the underlying connection.
func (s *Session) RemoteAddr() net.Addr {
	return s.ws.RemoteAddr()
}

// Close sends a best-effort close message and closes the connection.
func (s *Session) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	return s.ws.Close()
}
