package wire

import (
	"bufio"
	"bytes"
	"net"
	"testing"

	"socksd/internal/socksaddr"
)

func TestDecodeV5Greeting_FiltersUnknownMethods(t *testing.T) {
	// NMETHODS=3, methods {0x01 GSSAPI, 0x00 NoAuth, 0x02 UserPass}
	raw := []byte{0x03, 0x01, 0x00, 0x02}
	r := bufio.NewReader(bytes.NewReader(raw))

	methods, err := DecodeV5Greeting(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(methods) != 2 || methods[0] != AuthNone || methods[1] != AuthUserPass {
		t.Fatalf("methods = %v, want [NoAuth UserPass]", methods)
	}
}

func TestDecodeV5Greeting_OnlyGSSAPI_IsEmptyNotError(t *testing.T) {
	raw := []byte{0x01, 0x01}
	r := bufio.NewReader(bytes.NewReader(raw))

	methods, err := DecodeV5Greeting(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(methods) != 0 {
		t.Fatalf("methods = %v, want empty", methods)
	}
}

func TestEncodeV5MethodReply_NoAcceptable(t *testing.T) {
	got := EncodeV5MethodReply(0, false)
	want := []byte{Ver5, 0xFF}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodeV5AuthRequest(t *testing.T) {
	// 01 05 'alice' 06 'secret'
	var raw bytes.Buffer
	raw.WriteByte(AuthSubVer)
	raw.WriteByte(5)
	raw.WriteString("alice")
	raw.WriteByte(6)
	raw.WriteString("secret")

	r := bufio.NewReader(bytes.NewReader(raw.Bytes()))
	req, err := DecodeV5AuthRequest(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.User != "alice" || req.Pass != "secret" {
		t.Fatalf("got %+v", req)
	}
}

func TestDecodeV5Request_ATYPMatchesAddressFamily(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		want socksaddr.Kind
	}{
		{"ipv4", append([]byte{Cmd5Connect, 0x00, Atyp4, 8, 8, 8, 8}, 0, 53), socksaddr.KindIPv4},
		{"domain", append(append([]byte{Cmd5Connect, 0x00, AtypName, 11}, []byte("example.com")...), 0, 80), socksaddr.KindName},
		{"ipv6", append(append([]byte{Cmd5Connect, 0x00, Atyp6}, net.ParseIP("::1").To16()...), 0x01, 0xBB), socksaddr.KindIPv6},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := bufio.NewReader(bytes.NewReader(c.raw))
			req, err := DecodeV5Request(r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Dest.Addr.Kind != c.want {
				t.Fatalf("kind = %v, want %v", req.Dest.Addr.Kind, c.want)
			}
		})
	}
}

func TestEncodeDecodeV5Reply_RoundTrip(t *testing.T) {
	cases := []struct {
		rep  Reply
		ip   net.IP
		port uint16
	}{
		{ReplyAccepted, net.ParseIP("10.0.0.1").To4(), 4135},
		{ReplyGeneralFailure, nil, 0},
		{ReplyAccepted, net.ParseIP("2001:db8::1"), 9999},
	}
	for _, c := range cases {
		enc := EncodeV5Reply(c.rep, c.ip, c.port)
		r := bufio.NewReader(bytes.NewReader(enc))
		rep, ip, port, err := DecodeV5Reply(r)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rep != c.rep || port != c.port {
			t.Fatalf("got (%v,%v,%d)", rep, ip, port)
		}
		reenc := EncodeV5Reply(rep, ip, port)
		if !bytes.Equal(reenc, enc) {
			t.Fatalf("round trip mismatch: %v != %v", reenc, enc)
		}
	}
}

func TestDecodeV5Request_UDPAssociate(t *testing.T) {
	raw := []byte{Cmd5UDP, 0x00, Atyp4, 0, 0, 0, 0, 0, 0}
	r := bufio.NewReader(bytes.NewReader(raw))
	req, err := DecodeV5Request(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Cmd != Cmd5UDP {
		t.Fatalf("cmd = %x, want UDP", req.Cmd)
	}
}
