// Package server wires the acceptor loop to per-connection handlers,
// generalizing the teacher's StartProxy from a fixed outbound-IPv6 SOCKS5
// listener to the dual-protocol listener SPEC_FULL.md describes.
package server

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"socksd/internal/handler"
)

type Server struct {
	Addr string
	Deps handler.Deps
	Log  *zap.Logger
}

// Run listens on s.Addr and spawns a Handler per accepted connection until
// ctx is cancelled. Other accept errors are logged and the loop continues.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.Log.Info("listening", zap.String("addr", s.Addr), zap.Bool("socks4", s.Deps.EnableV4), zap.Bool("socks5", s.Deps.EnableV5))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.Log.Warn("accept error", zap.Error(err))
			continue
		}
		go handler.New(s.Deps, conn).Serve(ctx)
	}
}
