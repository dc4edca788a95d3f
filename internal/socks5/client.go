package socks5

import (
	"errors"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// ClientDial negotiates with a SOCKS5 server on rw and issues a CONNECT for
// address.
func ClientDial(rw io.ReadWriter, auth Auth, address string) error {
	if err := ClientNegotiate(rw, auth); err != nil {
		return err
	}
	if err := ClientConnect(rw, address); err != nil {
		return err
	}
	return nil
}

// ClientNegotiate offers no-auth, plus username/password when auth carries a
// username, and completes whichever method the server picks.
func ClientNegotiate(rw io.ReadWriter, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(rw); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(rw)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return errors.New("server requires username/password")
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(rw); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(rw)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return ErrAuthFailed
		}
		return nil
	default:
		return ErrNoAcceptableAuth
	}
}

// ClientConnect sends a CONNECT request for address and waits for a success
// reply.
func ClientConnect(rw io.ReadWriter, address string) error {
	target, err := ParseTarget(address)
	if err != nil {
		return err
	}

	req, err := target.AppendBinary([]byte{version, CmdConnect, 0x00})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if _, err := rw.Write(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(rw)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect %s failed: reply 0x%02x", address, rep.Rep)
	}
	return nil
}
