package reactor

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// SocketAddr is an IPv4 host/port pair.
type SocketAddr = interfaces.SocketAddr

// ParseAddress parses a HOST:PORT, HOST, or PORT spec into a SocketAddr,
// starting from def so a bare port or bare host only overrides the field it
// names. Grounded on original_source/socket.c's io_parse_address: a lone
// numeric spec is a port, a spec containing ':' splits into host and port,
// and anything else is a bare hostname. Unlike the original, failed name
// resolution and malformed ports are reported as a single *Error rather
// than a family of printf-style format strings.
func ParseAddress(spec string, def SocketAddr) (SocketAddr, error) {
	if spec == "" {
		return SocketAddr{}, NewError("ParseAddress", interfaces.KindInvalidAddress, "empty address spec")
	}

	addr := def
	host, portStr, ok := strings.Cut(spec, ":")
	if !ok {
		if port, err := strconv.Atoi(spec); err == nil {
			addr.Port = port
			return addr, nil
		}
		host = spec
		portStr = ""
	}

	if host != "" {
		ip, err := resolveHost(host)
		if err != nil {
			return SocketAddr{}, WrapError("ParseAddress", err)
		}
		addr.IP = ip
	}

	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return SocketAddr{}, NewError("ParseAddress", interfaces.KindInvalidAddress, fmt.Sprintf("invalid port %q in %q", portStr, spec))
		}
		addr.Port = port
	}

	return addr, nil
}

func resolveHost(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("host %q has no IPv4 address", host)
}
