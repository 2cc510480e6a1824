package handler

import (
	"bufio"
	"context"
	"errors"
	"net"

	"socksd/internal/coordinator"
	"socksd/internal/proxyerr"
	"socksd/internal/wire"
)

func (h *Handler) serveV5(ctx context.Context, r *bufio.Reader) error {
	method, err := h.v5Greet(ctx, r)
	if err != nil {
		return err
	}

	if err := h.v5Auth(ctx, r, method); err != nil {
		return err
	}

	return h.v5Request(ctx, r)
}

// v5Greet parses the method list and asks the coordinator to pick one, per
// spec.md §4.D's V5Greet state.
func (h *Handler) v5Greet(ctx context.Context, r *bufio.Reader) (wire.AuthMethod, error) {
	h.conn.SetReadDeadline(deadlineFrom(greetingTimeout))

	methods, err := wire.DecodeV5Greeting(r)
	if err != nil {
		h.countFailure("v5_greeting")
		return 0, err
	}

	chooseCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	method, ok, err := coordinator.ChooseAuthMethod(chooseCtx, h.deps.Bus, &methods)
	if err != nil {
		return 0, proxyerr.TimeoutErr(err)
	}
	if !ok {
		h.conn.Write(wire.EncodeV5MethodReply(0, false))
		h.countFailure("v5_no_acceptable_method")
		return 0, proxyerr.UnknownErr(errNoAcceptableMethod)
	}

	if _, err := h.conn.Write(wire.EncodeV5MethodReply(method, true)); err != nil {
		return 0, proxyerr.IOErr(err)
	}
	return method, nil
}

// v5Auth implements spec.md §4.D's V5Auth state.
func (h *Handler) v5Auth(ctx context.Context, r *bufio.Reader, method wire.AuthMethod) error {
	if method == wire.AuthNone {
		return nil
	}

	h.conn.SetReadDeadline(deadlineFrom(requestTimeout))
	req, err := wire.DecodeV5AuthRequest(r)
	if err != nil {
		h.countFailure("v5_auth_request")
		if errors.Is(err, wire.ErrInvalidUTF8) {
			// spec.md §4.D: malformed UTF-8 in the username/password is
			// treated the same as a wrong password, not a dropped connection.
			h.conn.Write(wire.EncodeV5AuthReply(false))
			return proxyerr.UnknownErr(errAuthDenied)
		}
		return err
	}

	user := coordinator.User{Name: req.User, Pass: req.Pass}

	authCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	allowed, err := coordinator.Authenticate(authCtx, h.deps.Bus, &user)
	if err != nil {
		return proxyerr.TimeoutErr(err)
	}

	if !allowed {
		h.conn.Write(wire.EncodeV5AuthReply(false))
		h.countFailure("v5_auth_denied")
		return proxyerr.UnknownErr(errAuthDenied)
	}

	if _, err := h.conn.Write(wire.EncodeV5AuthReply(true)); err != nil {
		return proxyerr.IOErr(err)
	}
	return nil
}

// v5Request implements spec.md §4.D's V5Req state.
func (h *Handler) v5Request(ctx context.Context, r *bufio.Reader) error {
	h.conn.SetReadDeadline(deadlineFrom(requestTimeout))
	ver, err := r.ReadByte()
	if err != nil {
		h.countFailure("v5_request")
		return proxyerr.IOErr(err)
	}
	if ver != wire.Ver5 {
		h.countFailure("v5_request")
		return proxyerr.ParseErr(errUnknownVersion)
	}
	req, err := wire.DecodeV5Request(r)
	if err != nil {
		h.countFailure("v5_request")
		return err
	}

	switch req.Cmd {
	case wire.Cmd5Connect:
		h.countConn("5", "connect")
		return h.v5Connect(ctx, r, req)
	case wire.Cmd5Bind:
		h.countConn("5", "bind")
		return h.v5Bind(ctx, r, req)
	case wire.Cmd5UDP:
		h.countConn("5", "udp")
		h.conn.Write(wire.EncodeV5Reply(wire.ReplyCommandNotSupported, nil, 0))
		return proxyerr.UnknownErr(errUDPUnsupported)
	default:
		return proxyerr.ParseErr(errUnknownVersion)
	}
}

func (h *Handler) v5Connect(ctx context.Context, r *bufio.Reader, req wire.V5Request) error {
	target, err := dialOutbound(ctx, req.Dest)
	if err != nil {
		rep := wire.ReplyGeneralFailure
		if proxyerr.KindOf(err) != proxyerr.Timeout {
			rep = replyForDialError(err)
		}
		h.conn.Write(wire.EncodeV5Reply(rep, nil, 0))
		return err
	}
	defer target.Close()

	session := coordinator.Session{
		Client2Server: h.conn.RemoteAddr().String(),
		Server2Client: h.conn.LocalAddr().String(),
		Server2Remote: target.LocalAddr().String(),
		Remote2Server: target.RemoteAddr().String(),
		Destination:   req.Dest,
	}
	h.deps.Bus.Publish(coordinator.MsgSessionStart(session))
	defer h.deps.Bus.Publish(coordinator.MsgSessionEnd(session))

	localAddr := target.LocalAddr().(*net.TCPAddr)
	h.conn.SetDeadline(zeroTime)
	if _, err := h.conn.Write(wire.EncodeV5Reply(wire.ReplyAccepted, localAddr.IP, uint16(localAddr.Port))); err != nil {
		return proxyerr.IOErr(err)
	}

	return h.relayTo(r, target)
}

// v5Bind implements spec.md §4.D's v5 BIND path, resolving the §9 "second
// reply" ambiguity in favor of RFC 1928: both replies carry real addresses.
func (h *Handler) v5Bind(ctx context.Context, r *bufio.Reader, req wire.V5Request) error {
	session, err := h.findSession(ctx, req.Dest)
	if err != nil {
		h.conn.Write(wire.EncodeV5Reply(wire.ReplyGeneralFailure, nil, 0))
		return err
	}
	if session == nil {
		h.conn.Write(wire.EncodeV5Reply(wire.ReplyGeneralFailure, nil, 0))
		return proxyerr.UnknownErr(errNoBindSession)
	}

	localAddr, err := net.ResolveTCPAddr("tcp", session.Server2Remote)
	if err != nil {
		h.conn.Write(wire.EncodeV5Reply(wire.ReplyGeneralFailure, nil, 0))
		return proxyerr.UnknownErr(err)
	}

	ln, err := bindListener(localAddr.IP)
	if err != nil {
		h.conn.Write(wire.EncodeV5Reply(wire.ReplyGeneralFailure, nil, 0))
		return err
	}
	defer ln.Close()

	boundAddr := ln.Addr().(*net.TCPAddr)
	if _, err := h.conn.Write(wire.EncodeV5Reply(wire.ReplyAccepted, boundAddr.IP, uint16(boundAddr.Port))); err != nil {
		return proxyerr.IOErr(err)
	}

	peer, err := acceptOne(ln)
	if err != nil {
		h.conn.Write(wire.EncodeV5Reply(wire.ReplyGeneralFailure, nil, 0))
		return err
	}
	defer peer.Close()

	peerAddr := peer.RemoteAddr().(*net.TCPAddr)
	if _, err := h.conn.Write(wire.EncodeV5Reply(wire.ReplyAccepted, peerAddr.IP, uint16(peerAddr.Port))); err != nil {
		return proxyerr.IOErr(err)
	}

	return h.relayTo(r, peer)
}

const (
	errNoAcceptableMethod = protoError("handler: no acceptable SOCKS5 auth method")
	errAuthDenied         = protoError("handler: SOCKS5 auth denied")
	errUDPUnsupported     = protoError("handler: UDP ASSOCIATE not supported")
)
