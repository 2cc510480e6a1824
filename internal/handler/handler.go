// Package handler implements the per-connection SOCKS4/4a/5 state machine
// described in spec.md §4.D: it reads the version byte, dispatches to the
// matching sub-machine, talks to the coordinator for BIND rendezvous and
// auth policy, and hands a successful CONNECT/BIND off to the relay engine.
package handler

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"socksd/internal/coordinator"
	"socksd/internal/metrics"
	"socksd/internal/proxyerr"
	"socksd/internal/socksaddr"
)

const (
	greetingTimeout   = 5 * time.Second
	requestTimeout    = 120 * time.Second
	connectTimeout    = 120 * time.Second
	bindAcceptTimeout = 300 * time.Second
)

// Deps are the collaborators a Handler needs; one Deps is shared by every
// connection's Handler.
type Deps struct {
	Bus      *coordinator.Bus
	EnableV4 bool
	EnableV5 bool
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// Handler drives one accepted connection to completion. It never panics out
// to its caller: every error is classified via proxyerr and handled by
// closing the connection, optionally after sending a rejection.
type Handler struct {
	deps Deps
	conn net.Conn
	id   string
	log  *zap.Logger
}

func New(deps Deps, conn net.Conn) *Handler {
	id := uuid.NewString()
	return &Handler{
		deps: deps,
		conn: conn,
		id:   id,
		log:  deps.Log.With(zap.String("conn_id", id), zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Serve runs the handler to completion, closing conn before returning.
func (h *Handler) Serve(ctx context.Context) {
	defer h.conn.Close()

	if err := h.serve(ctx); err != nil {
		h.log.Debug("connection ended", zap.Error(err), zap.String("kind", proxyerr.KindOf(err).String()))
	}
}

func (h *Handler) serve(ctx context.Context) error {
	r := bufio.NewReader(h.conn)

	h.conn.SetReadDeadline(time.Now().Add(greetingTimeout))
	verByte, err := r.ReadByte()
	if err != nil {
		return proxyerr.IOErr(err)
	}

	switch verByte {
	case 0x04:
		if !h.deps.EnableV4 {
			return proxyerr.ParseErr(errVersionDisabled)
		}
		return h.serveV4(ctx, r)
	case 0x05:
		if !h.deps.EnableV5 {
			return proxyerr.ParseErr(errVersionDisabled)
		}
		return h.serveV5(ctx, r)
	default:
		return proxyerr.ParseErr(errUnknownVersion)
	}
}

func (h *Handler) countConn(version, command string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.ConnectionsTotal.WithLabelValues(version, command).Inc()
	}
}

func (h *Handler) countFailure(stage string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.HandshakeFailures.WithLabelValues(stage).Inc()
	}
}

var zeroTime time.Time

func deadlineFrom(d time.Duration) time.Time {
	return time.Now().Add(d)
}

// findSession asks the coordinator for an active session matching dest,
// bounded by requestTimeout.
func (h *Handler) findSession(ctx context.Context, dest socksaddr.Destination) (*coordinator.Session, error) {
	findCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	session, err := coordinator.FindSession(findCtx, h.deps.Bus, &dest)
	if err != nil {
		return nil, proxyerr.TimeoutErr(err)
	}
	return session, nil
}

type protoError string

func (e protoError) Error() string { return string(e) }

const (
	errUnknownVersion  = protoError("handler: unknown SOCKS version byte")
	errVersionDisabled = protoError("handler: SOCKS version not enabled")
)
