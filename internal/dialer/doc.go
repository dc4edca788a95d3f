// Package dialer provides the outbound dialers cfproxy uses to reach the edge.
//
// The edge is normally dialed directly. Networks that only allow traffic
// through a local proxy can route the TCP leg through an HTTP CONNECT or a
// SOCKS5 upstream instead; TLS and the WebSocket upgrade run on top of
// whatever connection the dialer returns.
package dialer
