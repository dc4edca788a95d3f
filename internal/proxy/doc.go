// Package proxy implements the client-facing side of cfproxy.
//
// SOCKS5Server accepts SOCKS5 clients and runs each connection through
// negotiation, request decoding and tunnel establishment before handing it to
// Relay, which pumps bytes between the client and the tunnel in both
// directions. The package also holds the shared connection plumbing: the
// keepalive listener, the relay buffer pool, and the prometheus collectors.
package proxy
