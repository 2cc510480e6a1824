package handler

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"socksd/internal/netopt"
	"socksd/internal/proxyerr"
	"socksd/internal/socksaddr"
	"socksd/internal/wire"
)

// dialOutbound connects to dest with the standard CONNECT timeout and the
// teacher's socket tuning (TCP_NODELAY, keepalive) applied via Control.
func dialOutbound(ctx context.Context, dest socksaddr.Destination) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	dialer := net.Dialer{
		Control: netopt.DialControl,
	}

	conn, err := dialer.DialContext(dialCtx, "tcp", dest.String())
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, proxyerr.TimeoutErr(err)
		}
		return nil, proxyerr.IOErr(err)
	}
	return conn, nil
}

// replyForDialError maps a dial error, per spec.md §4.D/§7, to the subset
// of SOCKS5 REP codes the OS reliably distinguishes; everything else is
// GeneralFailure.
func replyForDialError(err error) wire.Reply {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return wire.ReplyConnectionRefused
	case errors.Is(err, syscall.EHOSTUNREACH):
		return wire.ReplyHostUnreachable
	case errors.Is(err, syscall.ENETUNREACH):
		return wire.ReplyNetworkUnreachable
	default:
		return wire.ReplyGeneralFailure
	}
}

// bindListener opens a fresh TCP listener on localIP:0 for a BIND
// rendezvous. SO_REUSEADDR is set since a prior BIND listener on the same
// address may have just closed.
func bindListener(localIP net.IP) (*net.TCPListener, error) {
	lc := net.ListenConfig{Control: netopt.ListenControl}
	ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(localIP.String(), "0"))
	if err != nil {
		return nil, proxyerr.IOErr(err)
	}
	return ln.(*net.TCPListener), nil
}

// acceptOne waits for exactly one inbound connection on ln, bounded by
// bindAcceptTimeout (spec.md §4.D notes no timeout is specified; this one
// guards against holding a BIND listener open forever).
func acceptOne(ln *net.TCPListener) (net.Conn, error) {
	ln.SetDeadline(time.Now().Add(bindAcceptTimeout))
	conn, err := ln.Accept()
	if err != nil {
		return nil, proxyerr.IOErr(err)
	}
	return conn, nil
}
