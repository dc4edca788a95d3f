// Package socks5 implements the SOCKS5 wire protocol spoken to local clients.
//
// The server side is written by hand so that every reply byte is under
// cfproxy's control: the version/method negotiation with the optional
// username/password sub-negotiation (RFC 1929), decoding of the CONNECT
// request, and the fixed success reply. Protocol constants, reply frames and
// the client side used by the upstream dialer and by tests come from
// github.com/txthinking/socks5.
package socks5
