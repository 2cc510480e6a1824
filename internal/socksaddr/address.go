// Package socksaddr holds the unified address/destination model shared by
// the wire codec, the session coordinator, and the handler. Address is kept
// as a plain comparable struct (no slices) so Destination and Session can
// use ordinary == for the structural equality the coordinator needs.
package socksaddr

import (
	"fmt"
	"net"
	"strconv"
)

// Kind tags which variant of the Address sum type is populated.
type Kind byte

const (
	KindIPv4 Kind = iota
	KindIPv6
	KindName
)

// Address is a sum of IPv4, IPv6, and domain-name variants. The Name
// variant is never normalized or resolved here — resolution happens at
// outbound-connect time via the OS resolver.
type Address struct {
	Kind Kind
	V4   [4]byte
	V6   [16]byte
	Name string
}

func IPv4(b [4]byte) Address { return Address{Kind: KindIPv4, V4: b} }
func IPv6(b [16]byte) Address { return Address{Kind: KindIPv6, V6: b} }
func Name(n string) Address   { return Address{Kind: KindName, Name: n} }

// FromNetIP converts a net.IP into an Address, preferring the IPv4
// representation when the address has one.
func FromNetIP(ip net.IP) Address {
	if v4 := ip.To4(); v4 != nil {
		var b [4]byte
		copy(b[:], v4)
		return IPv4(b)
	}
	var b [16]byte
	copy(b[:], ip.To16())
	return IPv6(b)
}

// IsSocks4aTrigger reports whether this address is the SOCKS4A convention
// marker: first three IPv4 octets zero and the fourth non-zero.
func (a Address) IsSocks4aTrigger() bool {
	return a.Kind == KindIPv4 && a.V4[0] == 0 && a.V4[1] == 0 && a.V4[2] == 0 && a.V4[3] != 0
}

// NetIP returns the net.IP form of an IPv4/IPv6 address, or nil for Name.
func (a Address) NetIP() net.IP {
	switch a.Kind {
	case KindIPv4:
		return net.IP(a.V4[:])
	case KindIPv6:
		return net.IP(a.V6[:])
	default:
		return nil
	}
}

func (a Address) String() string {
	switch a.Kind {
	case KindIPv4:
		return net.IP(a.V4[:]).String()
	case KindIPv6:
		return net.IP(a.V6[:]).String()
	default:
		return a.Name
	}
}

// Destination is an Address plus a port, stringifiable as "host:port" for
// resolver input.
type Destination struct {
	Addr Address
	Port uint16
}

func (d Destination) String() string {
	return net.JoinHostPort(d.Addr.String(), strconv.Itoa(int(d.Port)))
}

func (d Destination) GoString() string {
	return fmt.Sprintf("Destination{%s}", d.String())
}

// ParseIP validates s as an IPv4 or IPv6 address (not CIDR) and returns its
// Address form. Adapted from the teacher's IPv6-only ParseIPv6 to accept
// either family, since Config.BindIP and BIND listener addresses may be
// either.
func ParseIP(s string) (Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return Address{}, fmt.Errorf("socksaddr: invalid IP address %q", s)
	}
	return FromNetIP(ip), nil
}

// ParseIPv6 validates that s is specifically an IPv6 address, matching the
// teacher's stricter helper for contexts that must reject IPv4.
func ParseIPv6(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("socksaddr: invalid IP address %q", s)
	}
	if ip.To4() != nil {
		return nil, fmt.Errorf("socksaddr: expected IPv6, got IPv4: %q", s)
	}
	return ip, nil
}
