package proxy

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrAddrTooShort signals a truncated address header (SOCKS request or
// tunnel first-content frame).
var ErrAddrTooShort = errors.New("proxy: address header too short")

// ErrUnsupportedAddrType signals an ATYP byte outside RFC 1928's three
// values.
var ErrUnsupportedAddrType = errors.New("proxy: unsupported address type")

// encodeAddr renders atyp/host/port in RFC 1928 wire form: used both for the
// SOCKS5 CONNECT reply and as the tunnel's first-content address header
// (spec.md §4.5).
func encodeAddr(atyp byte, host string, port uint16) []byte {
	var body []byte
	switch atyp {
	case ATypIPv4:
		ip := net.ParseIP(host).To4()
		if ip == nil {
			ip = make([]byte, 4)
		}
		body = append([]byte{atyp}, ip...)
	case ATypIPv6:
		ip := net.ParseIP(host).To16()
		if ip == nil {
			ip = make([]byte, 16)
		}
		body = append([]byte{atyp}, ip...)
	default: // ATypDomain
		body = append([]byte{ATypDomain, byte(len(host))}, []byte(host)...)
	}
	portBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(portBuf, port)
	return append(body, portBuf...)
}

// parseAddr reads one RFC 1928 address (ATYP + address + port) from the
// front of buf, returning how many bytes it consumed.
func parseAddr(buf []byte) (atyp byte, host string, port uint16, consumed int, err error) {
	if len(buf) < 1 {
		return 0, "", 0, 0, ErrAddrTooShort
	}
	atyp = buf[0]
	switch atyp {
	case ATypIPv4:
		if len(buf) < 1+4+2 {
			return 0, "", 0, 0, ErrAddrTooShort
		}
		host = net.IP(buf[1:5]).String()
		port = binary.BigEndian.Uint16(buf[5:7])
		consumed = 7
	case ATypIPv6:
		if len(buf) < 1+16+2 {
			return 0, "", 0, 0, ErrAddrTooShort
		}
		host = net.IP(buf[1:17]).String()
		port = binary.BigEndian.Uint16(buf[17:19])
		consumed = 19
	case ATypDomain:
		if len(buf) < 2 {
			return 0, "", 0, 0, ErrAddrTooShort
		}
		n := int(buf[1])
		if len(buf) < 2+n+2 {
			return 0, "", 0, 0, ErrAddrTooShort
		}
		host = string(buf[2 : 2+n])
		port = binary.BigEndian.Uint16(buf[2+n : 2+n+2])
		consumed = 2 + n + 2
	default:
		return 0, "", 0, 0, ErrUnsupportedAddrType
	}
	return atyp, host, port, consumed, nil
}

// resolveSockaddr turns a SOCKS request's host/port into a unix.Sockaddr,
// resolving domain names synchronously (spec.md's reactors are per-thread
// and short-lived lookups are tolerated, matching how the teacher's
// eventloop examples treat connect(2) as the only truly async step).
func resolveSockaddr(host string, port uint16) (unix.Sockaddr, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, errors.Wrapf(err, "proxy: resolve %q", host)
		}
		ip = ips[0]
	}
	if v4 := ip.To4(); v4 != nil {
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], v4)
		sa.Port = int(port)
		return &sa, nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return nil, errors.Errorf("proxy: unresolvable address %q", host)
	}
	var sa unix.SockaddrInet6
	copy(sa.Addr[:], v6)
	sa.Port = int(port)
	return &sa, nil
}
