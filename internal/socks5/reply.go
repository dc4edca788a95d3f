package socks5

import (
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

const (
	version         = 0x05
	userPassVersion = 0x01

	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect = txsocks5.CmdConnect
)

// Auth configures optional username/password authentication for SOCKS5
// negotiation.
type Auth struct {
	Username string
	Password string

	// Required makes the server refuse clients that only offer no-auth when
	// credentials are configured. Ignored by the client side.
	Required bool
}

// WriteSuccessReply writes the CONNECT success reply. The bound address is
// always reported as 0.0.0.0:0.
func WriteSuccessReply(w io.Writer) error {
	if _, err := newZeroAddrReply(txsocks5.RepSuccess).WriteTo(w); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}

// WriteConnectionRefusedReply writes a SOCKS5 reply indicating that the
// destination connection was refused.
func WriteConnectionRefusedReply(w io.Writer) {
	_, _ = newZeroAddrReply(txsocks5.RepConnectionRefused).WriteTo(w)
}

func newZeroAddrReply(rep byte) *txsocks5.Reply {
	return txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
}

func writeNoAcceptableMethods(w io.Writer) {
	// RFC 1928: 0xFF indicates no acceptable methods.
	_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(w)
}
