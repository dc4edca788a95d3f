package socks5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"strings"

	txsocks5 "github.com/txthinking/socks5"
)

// Address types as carried in the ATYP field.
const (
	ATYPIPv4   = txsocks5.ATYPIPv4
	ATYPDomain = txsocks5.ATYPDomain
	ATYPIPv6   = txsocks5.ATYPIPv6
)

// Target is a requested destination: exactly one of an IPv4 address, a domain
// name or an IPv6 address, plus a port. The zero value is not a valid Target.
type Target struct {
	atyp   byte
	ip     netip.Addr
	domain string
	port   uint16
}

// IPv4Target returns a Target for a raw IPv4 address.
func IPv4Target(addr [4]byte, port uint16) Target {
	return Target{atyp: ATYPIPv4, ip: netip.AddrFrom4(addr), port: port}
}

// IPv6Target returns a Target for a raw IPv6 address.
func IPv6Target(addr [16]byte, port uint16) Target {
	return Target{atyp: ATYPIPv6, ip: netip.AddrFrom16(addr), port: port}
}

// DomainTarget returns a Target for a domain name. The name is not validated.
func DomainTarget(name string, port uint16) Target {
	return Target{atyp: ATYPDomain, domain: name, port: port}
}

// ParseTarget parses a "host:port" string. IP literals become address
// targets, anything else a domain target.
func ParseTarget(address string) (Target, error) {
	atyp, addr, port, err := txsocks5.ParseAddress(address)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: %w", address, err)
	}
	return ReadAddress(bytes.NewReader(append(addr, port...)), atyp)
}

// ReadAddress decodes DST.ADDR for atyp followed by the big-endian DST.PORT.
//
// Domain names are decoded permissively: invalid UTF-8 is replaced, never
// rejected.
func ReadAddress(r io.Reader, atyp byte) (Target, error) {
	var t Target
	switch atyp {
	case ATYPIPv4:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Target{}, fmt.Errorf("read ipv4 address: %w", err)
		}
		t = IPv4Target(b, 0)
	case ATYPDomain:
		var n [1]byte
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return Target{}, fmt.Errorf("read domain length: %w", err)
		}
		b := make([]byte, int(n[0]))
		if _, err := io.ReadFull(r, b); err != nil {
			return Target{}, fmt.Errorf("read domain: %w", err)
		}
		t = DomainTarget(strings.ToValidUTF8(string(b), "\uFFFD"), 0)
	case ATYPIPv6:
		var b [16]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Target{}, fmt.Errorf("read ipv6 address: %w", err)
		}
		t = IPv6Target(b, 0)
	default:
		return Target{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedAddressType, atyp)
	}

	var p [2]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return Target{}, fmt.Errorf("read port: %w", err)
	}
	t.port = binary.BigEndian.Uint16(p[:])
	return t, nil
}

// Type returns the ATYP value of the target.
func (t Target) Type() byte {
	return t.atyp
}

// Host returns the textual host: dotted decimal for IPv4, canonical form for
// IPv6, the name itself for domains.
func (t Target) Host() string {
	if t.atyp == ATYPDomain {
		return t.domain
	}
	if !t.ip.IsValid() {
		return ""
	}
	return t.ip.String()
}

// Port returns the target port. Port 0 is kept as sent.
func (t Target) Port() uint16 {
	return t.port
}

// String returns host:port.
func (t Target) String() string {
	return net.JoinHostPort(t.Host(), strconv.Itoa(int(t.port)))
}

// AppendBinary appends ATYP, DST.ADDR and DST.PORT in wire form.
func (t Target) AppendBinary(b []byte) ([]byte, error) {
	switch t.atyp {
	case ATYPIPv4:
		a := t.ip.As4()
		b = append(b, ATYPIPv4)
		b = append(b, a[:]...)
	case ATYPIPv6:
		a := t.ip.As16()
		b = append(b, ATYPIPv6)
		b = append(b, a[:]...)
	case ATYPDomain:
		if len(t.domain) > 255 {
			return b, fmt.Errorf("domain %q too long", t.domain)
		}
		b = append(b, ATYPDomain, byte(len(t.domain)))
		b = append(b, t.domain...)
	default:
		return b, ErrUnsupportedAddressType
	}
	return binary.BigEndian.AppendUint16(b, t.port), nil
}
