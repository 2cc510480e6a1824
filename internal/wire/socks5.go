package wire

import (
	"bufio"
	"net"

	"socksd/internal/proxyerr"
	"socksd/internal/socksaddr"
)

// DecodeV5Greeting parses "NMETHODS METHODS...". Unknown method bytes are
// dropped from the returned list; an empty result after filtering is a
// valid "no acceptable method" outcome, not a parse error.
func DecodeV5Greeting(r *bufio.Reader) ([]AuthMethod, error) {
	n, err := readByte(r)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, n)
	if err := readFull(r, raw); err != nil {
		return nil, err
	}
	methods := make([]AuthMethod, 0, len(raw))
	for _, b := range raw {
		switch b {
		case byte(AuthNone):
			methods = append(methods, AuthNone)
		case byte(AuthUserPass):
			methods = append(methods, AuthUserPass)
		}
	}
	return methods, nil
}

// EncodeV5MethodReply builds "VER METHOD". ok=false always encodes 0xFF
// regardless of method, for the "no acceptable method" case.
func EncodeV5MethodReply(method AuthMethod, ok bool) []byte {
	if !ok {
		return []byte{Ver5, methodNoAcceptable}
	}
	return []byte{Ver5, byte(method)}
}

// V5AuthRequest is the parsed RFC 1929 sub-negotiation request.
type V5AuthRequest struct {
	User string
	Pass string
}

// DecodeV5AuthRequest parses "VER ULEN USERNAME PLEN PASSWORD". The sub-
// negotiation VER (0x01) is distinct from the outer SOCKS version.
func DecodeV5AuthRequest(r *bufio.Reader) (V5AuthRequest, error) {
	ver, err := readByte(r)
	if err != nil {
		return V5AuthRequest{}, err
	}
	if ver != AuthSubVer {
		return V5AuthRequest{}, proxyerr.ParseErr(errBadAuthVer)
	}

	ulen, err := readByte(r)
	if err != nil {
		return V5AuthRequest{}, err
	}
	userBuf := make([]byte, ulen)
	if err := readFull(r, userBuf); err != nil {
		return V5AuthRequest{}, err
	}
	user, err := validUTF8(userBuf)
	if err != nil {
		return V5AuthRequest{}, err
	}

	plen, err := readByte(r)
	if err != nil {
		return V5AuthRequest{}, err
	}
	passBuf := make([]byte, plen)
	if err := readFull(r, passBuf); err != nil {
		return V5AuthRequest{}, err
	}
	pass, err := validUTF8(passBuf)
	if err != nil {
		return V5AuthRequest{}, err
	}

	return V5AuthRequest{User: string(user), Pass: string(pass)}, nil
}

// EncodeV5AuthReply builds "VER STATUS" (sub-negotiation version 0x01).
func EncodeV5AuthReply(ok bool) []byte {
	status := byte(0)
	if !ok {
		status = 0x01
	}
	return []byte{AuthSubVer, status}
}

// V5Request is the parsed SOCKS5 request.
type V5Request struct {
	Cmd  byte
	Dest socksaddr.Destination
}

// DecodeV5Request parses "CMD RSV ATYP DSTADDR DSTPORT". VER has already
// been consumed by the caller.
func DecodeV5Request(r *bufio.Reader) (V5Request, error) {
	cmd, err := readByte(r)
	if err != nil {
		return V5Request{}, err
	}
	if cmd != Cmd5Connect && cmd != Cmd5Bind && cmd != Cmd5UDP {
		return V5Request{}, proxyerr.ParseErr(errBadCmd)
	}

	rsv, err := readByte(r)
	if err != nil {
		return V5Request{}, err
	}
	if rsv != 0x00 {
		return V5Request{}, proxyerr.ParseErr(errBadRSV)
	}

	dest, err := decodeDestAddr(r)
	if err != nil {
		return V5Request{}, err
	}

	return V5Request{Cmd: cmd, Dest: dest}, nil
}

// decodeDestAddr parses "ATYP DSTADDR DSTPORT" as used by both the SOCKS5
// request and reply frames.
func decodeDestAddr(r *bufio.Reader) (socksaddr.Destination, error) {
	atyp, err := readByte(r)
	if err != nil {
		return socksaddr.Destination{}, err
	}

	var addr socksaddr.Address
	switch atyp {
	case Atyp4:
		var b [4]byte
		if err := readFull(r, b[:]); err != nil {
			return socksaddr.Destination{}, err
		}
		addr = socksaddr.IPv4(b)
	case AtypName:
		n, err := readByte(r)
		if err != nil {
			return socksaddr.Destination{}, err
		}
		buf := make([]byte, n)
		if err := readFull(r, buf); err != nil {
			return socksaddr.Destination{}, err
		}
		name, err := validUTF8(buf)
		if err != nil {
			return socksaddr.Destination{}, err
		}
		addr = socksaddr.Name(string(name))
	case Atyp6:
		var b [16]byte
		if err := readFull(r, b[:]); err != nil {
			return socksaddr.Destination{}, err
		}
		addr = socksaddr.IPv6(b)
	default:
		return socksaddr.Destination{}, proxyerr.ParseErr(errBadAtyp)
	}

	port, err := readUint16(r)
	if err != nil {
		return socksaddr.Destination{}, err
	}

	return socksaddr.Destination{Addr: addr, Port: port}, nil
}

// EncodeV5Reply builds "VER REP RSV ATYP DSTADDR DSTPORT". A nil ip encodes
// as ATYP=IPv4, 0.0.0.0:0 (or the given port), per spec.md §4.A.
func EncodeV5Reply(rep Reply, ip net.IP, port uint16) []byte {
	if ip == nil {
		buf := make([]byte, 10)
		buf[0] = Ver5
		buf[1] = byte(rep)
		buf[3] = Atyp4
		buf[8] = byte(port >> 8)
		buf[9] = byte(port)
		return buf
	}

	if v4 := ip.To4(); v4 != nil {
		buf := make([]byte, 10)
		buf[0] = Ver5
		buf[1] = byte(rep)
		buf[3] = Atyp4
		copy(buf[4:8], v4)
		buf[8] = byte(port >> 8)
		buf[9] = byte(port)
		return buf
	}

	buf := make([]byte, 22)
	buf[0] = Ver5
	buf[1] = byte(rep)
	buf[3] = Atyp6
	copy(buf[4:20], ip.To16())
	buf[20] = byte(port >> 8)
	buf[21] = byte(port)
	return buf
}

const (
	errBadAuthVer = protoError("socks5: bad sub-negotiation version")
	errBadRSV     = protoError("socks5: reserved byte not zero")
	errBadAtyp    = protoError("socks5: unknown ATYP")
)
