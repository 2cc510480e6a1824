// Package relay implements the bidirectional copy engine described in
// spec.md §4.C: after a SOCKS command succeeds, the handler owns a client
// stream (which may carry unread buffered bytes left over from parsing)
// and a target stream, and relay.Run bridges them full-duplex with
// half-close propagation.
package relay

import (
	"bufio"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// bufPool is a pool of 32 KiB buffers for the copy loops, following the
// teacher's relay.go sizing.
var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 32*1024)
		return &buf
	},
}

// Counters receives byte totals from each copy direction. Both Client2Target
// and Target2Client are optional hooks (nil is fine) so tests don't need a
// metrics fixture.
type Counters struct {
	Client2Target func(n int64)
	Target2Client func(n int64)
}

// Run flushes any bytes already buffered in client (from the handshake
// parse) to target, then bridges client and target full-duplex until both
// directions have seen EOF. It returns only after both copy loops have
// terminated, and surfaces the first error either loop produced.
func Run(client net.Conn, clientBuf *bufio.Reader, target net.Conn, c Counters) error {
	if clientBuf != nil {
		if n := clientBuf.Buffered(); n > 0 {
			residual := make([]byte, n)
			if _, err := io.ReadFull(clientBuf, residual); err != nil {
				return err
			}
			if _, err := target.Write(residual); err != nil {
				return err
			}
		}
	}

	var g errgroup.Group
	var closeOnce sync.Once
	abort := func() {
		closeOnce.Do(func() {
			client.Close()
			target.Close()
		})
	}

	g.Go(func() error {
		n, err := copyHalf(target, client)
		if c.Client2Target != nil {
			c.Client2Target(n)
		}
		if err != nil {
			abort()
		}
		return err
	})

	g.Go(func() error {
		n, err := copyHalf(client, target)
		if c.Target2Client != nil {
			c.Target2Client(n)
		}
		if err != nil {
			abort()
		}
		return err
	})

	err := g.Wait()

	// Either loop finishing cleanly still leaves the other half-open
	// (by design, for half-close); once both are done there is nothing
	// left to relay, so drop both ends for good.
	abort()

	return err
}

// closeWriter is implemented by *net.TCPConn and *net.UnixConn; the write
// half-close this enables is what lets protocols like SMTP-over-proxy see a
// clean FIN on one direction while the other stays open.
type closeWriter interface {
	CloseWrite() error
}

// copyHalf copies from src to dst and, on EOF of src, performs a write-half
// shutdown on dst so the peer observes a TCP FIN without losing the still-
// open read direction.
func copyHalf(dst, src net.Conn) (int64, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	n, err := io.CopyBuffer(dst, src, *bufp)
	if err != nil {
		return n, err
	}

	if cw, ok := dst.(closeWriter); ok {
		cw.CloseWrite()
	}
	return n, nil
}
