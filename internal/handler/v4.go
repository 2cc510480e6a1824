package handler

import (
	"bufio"
	"context"
	"net"

	"go.uber.org/zap"

	"socksd/internal/proxyerr"
	"socksd/internal/relay"
	"socksd/internal/wire"
)

func (h *Handler) serveV4(ctx context.Context, r *bufio.Reader) error {
	h.conn.SetReadDeadline(deadlineFrom(requestTimeout))

	init, err := wire.DecodeV4Init(r)
	if err != nil {
		h.countFailure("v4_init")
		return err
	}

	switch init.Cmd {
	case wire.Cmd4Connect:
		h.countConn("4", "connect")
		return h.v4Connect(ctx, r, init)
	case wire.Cmd4Bind:
		h.countConn("4", "bind")
		return h.v4Bind(ctx, r, init)
	default:
		return proxyerr.ParseErr(errUnknownVersion)
	}
}

func (h *Handler) v4Connect(ctx context.Context, r *bufio.Reader, init wire.V4Init) error {
	target, err := dialOutbound(ctx, init.Dest)
	if err != nil {
		h.conn.Write(wire.EncodeV4Reply(wire.Status4Rejected, nil, 0))
		return err
	}
	defer target.Close()

	h.conn.SetDeadline(zeroTime)
	if _, err := h.conn.Write(wire.EncodeV4Reply(wire.Status4Granted, nil, 0)); err != nil {
		return proxyerr.IOErr(err)
	}

	return h.relayTo(r, target)
}

// v4Bind implements spec.md §4.D's v4 BIND path: look up an existing
// session for init.Dest, bind a fresh listener on that session's outbound
// local IP, accept one inbound connection, and relay.
func (h *Handler) v4Bind(ctx context.Context, r *bufio.Reader, init wire.V4Init) error {
	session, err := h.findSession(ctx, init.Dest)
	if err != nil || session == nil {
		h.conn.Write(wire.EncodeV4Reply(wire.Status4Rejected, nil, 0))
		if err != nil {
			return err
		}
		return proxyerr.UnknownErr(errNoBindSession)
	}

	localAddr, err := net.ResolveTCPAddr("tcp", session.Server2Remote)
	if err != nil {
		h.conn.Write(wire.EncodeV4Reply(wire.Status4Rejected, nil, 0))
		return proxyerr.UnknownErr(err)
	}
	if localAddr.IP.To4() == nil {
		// SOCKS4 is IPv4-only; spec.md explicitly drops IPv6 SOCKS4 BIND.
		h.conn.Write(wire.EncodeV4Reply(wire.Status4Rejected, nil, 0))
		return proxyerr.UnknownErr(errV4BindIPv6)
	}

	ln, err := bindListener(localAddr.IP)
	if err != nil {
		h.conn.Write(wire.EncodeV4Reply(wire.Status4Rejected, nil, 0))
		return err
	}
	defer ln.Close()

	boundAddr := ln.Addr().(*net.TCPAddr)
	if _, err := h.conn.Write(wire.EncodeV4Reply(wire.Status4Granted, boundAddr.IP, uint16(boundAddr.Port))); err != nil {
		return proxyerr.IOErr(err)
	}

	peer, err := acceptOne(ln)
	if err != nil {
		h.conn.Write(wire.EncodeV4Reply(wire.Status4Rejected, nil, 0))
		return err
	}
	defer peer.Close()

	peerAddr := peer.RemoteAddr().(*net.TCPAddr)
	if _, err := h.conn.Write(wire.EncodeV4Reply(wire.Status4Granted, peerAddr.IP, uint16(peerAddr.Port))); err != nil {
		return proxyerr.IOErr(err)
	}

	return h.relayTo(r, peer)
}

func (h *Handler) relayTo(r *bufio.Reader, target net.Conn) error {
	counters := relay.Counters{}
	if h.deps.Metrics != nil {
		counters.Client2Target = func(n int64) { h.deps.Metrics.RelayBytesTotal.WithLabelValues("client_to_target").Add(float64(n)) }
		counters.Target2Client = func(n int64) { h.deps.Metrics.RelayBytesTotal.WithLabelValues("target_to_client").Add(float64(n)) }
	}
	err := relay.Run(h.conn, r, target, counters)
	if err != nil {
		return proxyerr.IOErr(err)
	}
	return nil
}

const (
	errNoBindSession = protoError("handler: no active session for BIND destination")
	errV4BindIPv6    = protoError("handler: SOCKS4 BIND requires an IPv4 session")
)

func (h *Handler) debugLog(msg string, fields ...zap.Field) {
	h.log.Debug(msg, fields...)
}
