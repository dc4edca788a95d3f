package socks5

import "errors"

// ErrProtocol matches every *ProtocolError via errors.Is.
var ErrProtocol = errors.New("socks5: protocol error")

// ErrAuthFailed is returned when the client's username/password do not match.
var ErrAuthFailed = errors.New("socks5: invalid username or password")

// Protocol error kinds. Each is a *ProtocolError, so errors.Is matches both the
// kind and ErrProtocol.
var (
	ErrBadVersion             error = &ProtocolError{msg: "unsupported socks version"}
	ErrNoAcceptableAuth       error = &ProtocolError{msg: "no acceptable authentication methods"}
	ErrBadAuthVersion         error = &ProtocolError{msg: "unsupported authentication version"}
	ErrBadRequest             error = &ProtocolError{msg: "invalid request"}
	ErrUnsupportedCommand     error = &ProtocolError{msg: "unsupported command"}
	ErrUnsupportedAddressType error = &ProtocolError{msg: "unsupported address type"}
)

// ProtocolError reports malformed or unsupported data from the client.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string {
	return "socks5: " + e.msg
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}
