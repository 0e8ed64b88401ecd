package evnet

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is a structural IPv4/IPv6 address+port pair, the Go analogue of
// the source's IpEndPoint union (spec.md §3): equality and string form are
// structural, not identity-based.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// NewEndpoint builds an Endpoint from a parsed IP and port.
func NewEndpoint(ip net.IP, port uint16) Endpoint {
	return Endpoint{IP: ip, Port: port}
}

// ParseEndpoint parses "host:port" into an Endpoint without performing name
// resolution; host must already be a literal IP address. Use ResolveTCPName
// for hostnames.
func ParseEndpoint(hostport string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, fmt.Errorf("evnet: %q is not a literal IP address", host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{IP: ip, Port: uint16(port)}, nil
}

// IsIPv4 reports whether the endpoint's address is an IPv4 address.
func (e Endpoint) IsIPv4() bool { return e.IP.To4() != nil }

// IsIPv6 reports whether the endpoint's address is an IPv6-only address.
func (e Endpoint) IsIPv6() bool { return e.IP.To4() == nil && e.IP.To16() != nil }

// String renders the endpoint as "host:port", bracketing IPv6 addresses.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
}

// Equal reports structural equality between two endpoints.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Port == other.Port && e.IP.Equal(other.IP)
}

// ResolveTCPName resolves node (a hostname or literal address) for a TCP
// connection or listen, returning an ordered list of candidate endpoints
// (spec.md §3, "name resolution returns an ordered list of endpoints").
func ResolveTCPName(node string, port uint16) ([]Endpoint, error) {
	ips, err := net.LookupIP(node)
	if err != nil {
		return nil, err
	}
	out := make([]Endpoint, 0, len(ips))
	for _, ip := range ips {
		out = append(out, Endpoint{IP: ip, Port: port})
	}
	return out, nil
}

func (e Endpoint) tcpAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: e.IP, Port: int(e.Port)}
}

func (e Endpoint) udpAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: int(e.Port)}
}

func endpointFromAddr(addr net.Addr) Endpoint {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return Endpoint{IP: a.IP, Port: uint16(a.Port)}
	case *net.UDPAddr:
		return Endpoint{IP: a.IP, Port: uint16(a.Port)}
	default:
		return Endpoint{}
	}
}
