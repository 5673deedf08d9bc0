package listen

import (
	"context"
	"encoding/binary"
	"io"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cmarkets/dns-resolverd/internal/codec"
)

// TCPListener serves DNS over TCP. One accept goroutine dispatches each
// accepted connection to a pool of worker goroutines over a bounded
// channel; each connection carries exactly one 2-byte-length-prefixed
// request/response exchange before being closed, matching the wire
// framing used for zone transfers and oversized responses.
type TCPListener struct {
	Addr    string
	Workers int
	Handler Handler
	Log     *zap.Logger

	// Ready, if non-nil, receives the bound local address once the
	// listener is accepting -- set by tests that bind to an ephemeral port.
	Ready chan<- net.Addr
}

// Run binds the listener and serves until ctx is cancelled.
func (l *TCPListener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	if l.Ready != nil {
		l.Ready <- ln.Addr()
	}

	workers := l.Workers
	if workers < 1 {
		workers = 1
	}

	conns := make(chan net.Conn, workers*4)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		defer close(conns)
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				continue
			}
			select {
			case conns <- conn:
			case <-gctx.Done():
				conn.Close()
				return nil
			}
		}
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for conn := range conns {
				l.handle(gctx, conn)
			}
			return nil
		})
	}

	err = g.Wait()
	if gctx.Err() != nil {
		return nil
	}
	return err
}

func (l *TCPListener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return
	}
	msgLen := binary.BigEndian.Uint16(lenBuf[:])

	raw := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, raw); err != nil {
		return
	}

	pkt, err := codec.Decode(raw)
	if err != nil {
		l.logger().Debug("dropping malformed TCP packet", zap.Error(err))
		return
	}

	resp := l.Handler.Handle(ctx, pkt)

	out, err := resp.Encode()
	if err != nil {
		l.logger().Warn("failed to encode TCP response", zap.Error(err))
		return
	}

	var outLen [2]byte
	binary.BigEndian.PutUint16(outLen[:], uint16(len(out)))
	if _, err := conn.Write(outLen[:]); err != nil {
		return
	}
	conn.Write(out)
}

func (l *TCPListener) logger() *zap.Logger {
	if l.Log != nil {
		return l.Log
	}
	return zap.NewNop()
}
