// Package tproxy accepts TCP connections redirected by the firewall and
// tunnels each one to its original destination through the edge.
//
// On Linux the listener is opened with IP_TRANSPARENT (IPV6_TRANSPARENT for
// IPv6) so it can take TPROXY traffic, and the original destination is read
// with SO_ORIGINAL_DST for REDIRECT rules. When the socket has no NAT entry
// the local address of the connection is the original destination, which is
// what TPROXY preserves.
//
// Other platforms have no transparent listener.
package tproxy
