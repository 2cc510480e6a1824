package wire

import (
	"bufio"
	"net"

	"socksd/internal/proxyerr"
	"socksd/internal/socksaddr"
)

// V4Init is the parsed SOCKS4/4a initial request. VER has already been
// consumed by the caller (the handler reads the version byte itself to
// decide which sub-machine to dispatch to).
type V4Init struct {
	Cmd    byte
	Ident  string
	Dest   socksaddr.Destination
	Socks4a bool
}

// DecodeV4Init parses "CMD DSTPORT DSTIP USERID(CSTR) [DOMAIN(CSTR)]".
// The SOCKS4a trigger is exactly the "0.0.0.x, x != 0" DSTIP pattern; when
// it is not present the frame ends at USERID. Bytes after the frame are not
// checked or rejected: they are left unread in r.
func DecodeV4Init(r *bufio.Reader) (V4Init, error) {
	cmd, err := readByte(r)
	if err != nil {
		return V4Init{}, err
	}
	if cmd != Cmd4Connect && cmd != Cmd4Bind {
		return V4Init{}, proxyerr.ParseErr(errBadCmd)
	}

	port, err := readUint16(r)
	if err != nil {
		return V4Init{}, err
	}

	var ipBuf [4]byte
	if err := readFull(r, ipBuf[:]); err != nil {
		return V4Init{}, err
	}

	ident, err := readCString(r)
	if err != nil {
		return V4Init{}, err
	}
	identStr, err := validUTF8(ident)
	if err != nil {
		return V4Init{}, err
	}

	dest := socksaddr.Destination{Addr: destAddress4(ipBuf), Port: port}

	init := V4Init{Cmd: cmd, Ident: string(identStr), Dest: dest}

	if dest.Addr.IsSocks4aTrigger() {
		domain, err := readCString(r)
		if err != nil {
			return V4Init{}, err
		}
		domainStr, err := validUTF8(domain)
		if err != nil {
			return V4Init{}, err
		}
		init.Socks4a = true
		init.Dest.Addr = socksaddr.Name(string(domainStr))
	}

	return init, nil
}

// EncodeV4Reply builds the 8-byte SOCKS4 reply: 0x00 STATUS DSTPORT DSTIP.
// A nil ip encodes as 0.0.0.0.
func EncodeV4Reply(status byte, ip net.IP, port uint16) []byte {
	buf := make([]byte, 8)
	buf[1] = status
	if ip != nil {
		if v4 := ip.To4(); v4 != nil {
			copy(buf[4:8], v4)
		}
	}
	buf[2] = byte(port >> 8)
	buf[3] = byte(port)
	return buf
}

type protoError string

func (e protoError) Error() string { return string(e) }

const errBadCmd = protoError("socks4: unknown CMD")
