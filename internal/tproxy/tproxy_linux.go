//go:build linux

package tproxy

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/achyuki/cfproxy/internal/proxy"
)

// IsSupported reports whether transparent listening works on this OS.
const IsSupported = true

// soOriginalDst is SO_ORIGINAL_DST (IPv4) and IP6T_SO_ORIGINAL_DST (IPv6).
const soOriginalDst = 80

// ListenTransparentTCP listens on addr with IP_TRANSPARENT set so the socket
// can accept connections steered to it by TPROXY rules. It needs
// CAP_NET_ADMIN. Accepted connections get keepAliveConfig applied.
func ListenTransparentTCP(ctx context.Context, addr string, keepAliveConfig net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if network == "tcp6" {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IPV6, unix.IPV6_TRANSPARENT, 1)
			} else {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
			}
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return &proxy.KeepAliveListener{Listener: ln, KeepAliveConfig: keepAliveConfig}, nil
}

// OriginalDst returns where the client meant to connect before the firewall
// redirected the connection.
func OriginalDst(c net.Conn) (netip.AddrPort, error) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, errors.New("original destination: not a TCP connection")
	}
	local := tc.LocalAddr().(*net.TCPAddr).AddrPort()

	rc, err := tc.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("original destination: %w", err)
	}

	var (
		dst     netip.AddrPort
		sockErr error
	)
	err = rc.Control(func(fd uintptr) {
		if local.Addr().Unmap().Is4() {
			dst, sockErr = originalDst4(int(fd))
		} else {
			dst, sockErr = originalDst6(int(fd))
		}
	})
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("original destination: %w", err)
	}
	if sockErr != nil {
		// No NAT entry: TPROXY, or a direct connection.
		return netip.AddrPortFrom(local.Addr().Unmap(), local.Port()), nil
	}
	return dst, nil
}

func originalDst4(fd int) (netip.AddrPort, error) {
	// Multiaddr holds a sockaddr_in: family, big-endian port, address.
	mreq, err := unix.GetsockoptIPv6Mreq(fd, unix.SOL_IP, soOriginalDst)
	if err != nil {
		return netip.AddrPort{}, err
	}
	b := mreq.Multiaddr
	ip := netip.AddrFrom4([4]byte(b[4:8]))
	return netip.AddrPortFrom(ip, binary.BigEndian.Uint16(b[2:4])), nil
}

func originalDst6(fd int) (netip.AddrPort, error) {
	info, err := unix.GetsockoptIPv6MTUInfo(fd, unix.SOL_IPV6, soOriginalDst)
	if err != nil {
		return netip.AddrPort{}, err
	}
	var port [2]byte
	binary.NativeEndian.PutUint16(port[:], info.Addr.Port)
	ip := netip.AddrFrom16(info.Addr.Addr).Unmap()
	return netip.AddrPortFrom(ip, binary.BigEndian.Uint16(port[:])), nil
}
