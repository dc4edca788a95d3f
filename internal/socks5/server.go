package socks5

import (
	"crypto/subtle"
	"fmt"
	"io"
	"strings"

	txsocks5 "github.com/txthinking/socks5"
)

// ServerNegotiate runs the server side of the method negotiation on rw.
//
// Username/password is selected whenever the client offers it and
// credentials are configured. Otherwise no-auth is selected if offered, even
// with credentials configured, unless auth.Required is set.
func ServerNegotiate(rw io.ReadWriter, auth Auth) error {
	ver, err := readByte(rw)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if ver != version {
		writeNoAcceptableMethods(rw)
		return fmt.Errorf("%w: %d", ErrBadVersion, ver)
	}

	n, err := readByte(rw)
	if err != nil {
		return fmt.Errorf("read method count: %w", err)
	}
	methods := make([]byte, int(n))
	if _, err := io.ReadFull(rw, methods); err != nil {
		return fmt.Errorf("read methods: %w", err)
	}

	switch {
	case auth.enabled() && containsMethod(methods, txsocks5.MethodUsernamePassword):
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(rw); err != nil {
			return fmt.Errorf("negotiation reply: %w", err)
		}
		return serverUserPass(rw, auth)
	case containsMethod(methods, txsocks5.MethodNone) && !(auth.Required && auth.enabled()):
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(rw); err != nil {
			return fmt.Errorf("negotiation reply: %w", err)
		}
		return nil
	default:
		writeNoAcceptableMethods(rw)
		return ErrNoAcceptableAuth
	}
}

// serverUserPass runs the RFC 1929 sub-negotiation.
func serverUserPass(rw io.ReadWriter, auth Auth) error {
	ver, err := readByte(rw)
	if err != nil {
		return fmt.Errorf("read userpass version: %w", err)
	}
	if ver != userPassVersion {
		return fmt.Errorf("%w: %d", ErrBadAuthVersion, ver)
	}

	user, err := readString(rw)
	if err != nil {
		return fmt.Errorf("read username: %w", err)
	}
	pass, err := readString(rw)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if !auth.matches(user, pass) {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(rw)
		return ErrAuthFailed
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(rw); err != nil {
		return fmt.Errorf("userpass reply: %w", err)
	}
	return nil
}

// ServerReadRequest decodes a CONNECT request. Nothing is written: rejected
// requests get no reply frame.
func ServerReadRequest(r io.Reader) (Target, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Target{}, fmt.Errorf("read request: %w", err)
	}
	if hdr[0] != version {
		return Target{}, fmt.Errorf("%w: version %d", ErrBadRequest, hdr[0])
	}
	if hdr[1] != CmdConnect {
		return Target{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCommand, hdr[1])
	}
	// hdr[2] is RSV.
	return ReadAddress(r, hdr[3])
}

func (a Auth) enabled() bool {
	return a.Username != "" || a.Password != ""
}

func (a Auth) matches(user, pass string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(a.Username))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(a.Password))
	return u&p == 1
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// readString reads a 1-byte length prefixed string, replacing invalid UTF-8.
func readString(r io.Reader) (string, error) {
	n, err := readByte(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, int(n))
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
