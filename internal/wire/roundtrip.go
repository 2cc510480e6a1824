package wire

import (
	"bufio"
	"net"

	"socksd/internal/proxyerr"
)

// The decode helpers in this file have no role in the live handshake — the
// handler only ever encodes these three reply frames. They exist so
// encode(decode(f)) == f (spec.md §8 property 3) is a checkable round trip
// in tests, symmetric with the decoders the handler does use.

// DecodeV4Reply parses the 8-byte "0x00 STATUS DSTPORT DSTIP" frame.
func DecodeV4Reply(r *bufio.Reader) (status byte, ip net.IP, port uint16, err error) {
	var buf [8]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, nil, 0, err
	}
	if buf[0] != 0x00 {
		return 0, nil, 0, proxyerr.ParseErr(errBadVer)
	}
	status = buf[1]
	port = uint16(buf[2])<<8 | uint16(buf[3])
	ip = net.IP(append([]byte(nil), buf[4:8]...))
	return status, ip, port, nil
}

// DecodeV5MethodReply parses the 2-byte "VER METHOD" frame.
func DecodeV5MethodReply(r *bufio.Reader) (method AuthMethod, ok bool, err error) {
	var buf [2]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, false, err
	}
	if buf[0] != Ver5 {
		return 0, false, proxyerr.ParseErr(errBadVer)
	}
	if buf[1] == methodNoAcceptable {
		return 0, false, nil
	}
	return AuthMethod(buf[1]), true, nil
}

// DecodeV5Reply parses "VER REP RSV ATYP DSTADDR DSTPORT".
func DecodeV5Reply(r *bufio.Reader) (rep Reply, ip net.IP, port uint16, err error) {
	var hdr [2]byte
	if err := readFull(r, hdr[:]); err != nil {
		return 0, nil, 0, err
	}
	if hdr[0] != Ver5 {
		return 0, nil, 0, proxyerr.ParseErr(errBadVer)
	}
	rep = Reply(hdr[1])

	rsv, err := readByte(r)
	if err != nil {
		return 0, nil, 0, err
	}
	if rsv != 0x00 {
		return 0, nil, 0, proxyerr.ParseErr(errBadRSV)
	}

	dest, err := decodeDestAddr(r)
	if err != nil {
		return 0, nil, 0, err
	}
	return rep, dest.Addr.NetIP(), dest.Port, nil
}

const errBadVer = protoError("socks: unexpected version byte")
