// Package tunnel opens the secured transport to the edge.
//
// A tunnel is a TCP connection to the configured edge IP, a TLS session
// verified against the edge hostname, and a WebSocket upgrade carrying the
// auth token and the requested target in request headers. Once upgraded, each
// binary message carries raw proxied bytes.
package tunnel
