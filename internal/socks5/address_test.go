package socks5

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadAddress(t *testing.T) {
	tests := []struct {
		name     string
		atyp     byte
		in       []byte
		wantHost string
		wantPort uint16
	}{
		{name: "ipv4", atyp: ATYPIPv4, in: []byte{192, 168, 1, 1, 0x01, 0xbb}, wantHost: "192.168.1.1", wantPort: 443},
		{name: "domain", atyp: ATYPDomain, in: append(append([]byte{11}, "example.com"...), 0x00, 0x50), wantHost: "example.com", wantPort: 80},
		{name: "ipv6 loopback", atyp: ATYPIPv6, in: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0x1f, 0x90}, wantHost: "::1", wantPort: 8080},
		{name: "ipv4 mapped ipv6", atyp: ATYPIPv6, in: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 10, 0, 0, 1, 0, 22}, wantHost: "::ffff:10.0.0.1", wantPort: 22},
		{name: "port zero kept", atyp: ATYPIPv4, in: []byte{0, 0, 0, 0, 0, 0}, wantHost: "0.0.0.0", wantPort: 0},
		{name: "empty domain", atyp: ATYPDomain, in: []byte{0, 0, 1}, wantHost: "", wantPort: 1},
		{name: "invalid utf8 replaced", atyp: ATYPDomain, in: []byte{3, 'a', 0xff, 'b', 0, 80}, wantHost: "a\uFFFDb", wantPort: 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.in)
			got, err := ReadAddress(r, tt.atyp)
			if err != nil {
				t.Fatal(err)
			}
			if got.Host() != tt.wantHost {
				t.Fatalf("host: got %q want %q", got.Host(), tt.wantHost)
			}
			if got.Port() != tt.wantPort {
				t.Fatalf("port: got %d want %d", got.Port(), tt.wantPort)
			}
			if got.Type() != tt.atyp {
				t.Fatalf("type: got %d want %d", got.Type(), tt.atyp)
			}
			if r.Len() != 0 {
				t.Fatalf("%d bytes left unread", r.Len())
			}

			enc, err := got.AppendBinary(nil)
			if err != nil {
				t.Fatal(err)
			}
			if want := append([]byte{tt.atyp}, tt.in...); tt.name != "invalid utf8 replaced" && !bytes.Equal(enc, want) {
				t.Fatalf("encode: got %x want %x", enc, want)
			}
		})
	}
}

func TestReadAddressUnsupportedType(t *testing.T) {
	for _, atyp := range []byte{0x00, 0x02, 0x05, 0xff} {
		_, err := ReadAddress(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}), atyp)
		if !errors.Is(err, ErrUnsupportedAddressType) {
			t.Fatalf("atyp 0x%02x: got %v", atyp, err)
		}
		if !errors.Is(err, ErrProtocol) {
			t.Fatalf("atyp 0x%02x: %v is not a protocol error", atyp, err)
		}
	}
}

func TestReadAddressShort(t *testing.T) {
	tests := []struct {
		name string
		atyp byte
		in   []byte
	}{
		{name: "ipv4", atyp: ATYPIPv4, in: []byte{1, 2, 3}},
		{name: "domain length", atyp: ATYPDomain, in: nil},
		{name: "domain body", atyp: ATYPDomain, in: []byte{5, 'a'}},
		{name: "ipv6", atyp: ATYPIPv6, in: make([]byte, 10)},
		{name: "port", atyp: ATYPIPv4, in: []byte{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadAddress(bytes.NewReader(tt.in), tt.atyp)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrProtocol) {
				t.Fatalf("short read reported as protocol error: %v", err)
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in       string
		wantType byte
		wantStr  string
	}{
		{in: "127.0.0.1:80", wantType: ATYPIPv4, wantStr: "127.0.0.1:80"},
		{in: "[::1]:443", wantType: ATYPIPv6, wantStr: "[::1]:443"},
		{in: "example.com:0", wantType: ATYPDomain, wantStr: "example.com:0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got.Type() != tt.wantType {
				t.Fatalf("type: got %d want %d", got.Type(), tt.wantType)
			}
			if got.String() != tt.wantStr {
				t.Fatalf("got %q want %q", got.String(), tt.wantStr)
			}
		})
	}

	if _, err := ParseTarget("no-port"); err == nil {
		t.Fatal("expected error for missing port")
	}
}

func TestAppendBinaryDomainTooLong(t *testing.T) {
	long := DomainTarget(string(bytes.Repeat([]byte("a"), 256)), 80)
	if _, err := long.AppendBinary(nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := (Target{}).AppendBinary(nil); err == nil {
		t.Fatal("expected error for zero target")
	}
}
