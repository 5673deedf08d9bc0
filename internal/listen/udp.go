// Package listen runs the UDP and TCP DNS listeners: one receive/accept
// goroutine feeding a bounded queue of requests to a pool of worker
// goroutines, with graceful shutdown via context cancellation.
package listen

import (
	"context"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cmarkets/dns-resolverd/internal/codec"
)

// Handler answers one decoded request and returns the response to send
// back. It is the single seam between this package and internal/query.
type Handler interface {
	Handle(ctx context.Context, req *codec.Packet) *codec.Packet
}

type udpRequest struct {
	raw  []byte
	addr net.Addr
}

// UDPListener serves DNS over UDP with a fixed-size worker pool pulling
// requests off a bounded channel fed by one receive goroutine.
type UDPListener struct {
	Addr    string
	Workers int
	Handler Handler
	Log     *zap.Logger

	// Ready, if non-nil, receives the bound local address once the socket
	// is listening -- set by tests that bind to an ephemeral port.
	Ready chan<- net.Addr

	conn *net.UDPConn
}

// Run binds the listener and serves until ctx is cancelled, then closes
// the socket and waits for in-flight workers to finish their current
// request.
func (l *UDPListener) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	l.conn = conn
	if l.Ready != nil {
		l.Ready <- conn.LocalAddr()
	}

	workers := l.Workers
	if workers < 1 {
		workers = 1
	}

	queue := make(chan udpRequest, workers*4)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})

	g.Go(func() error {
		defer close(queue)
		buf := make([]byte, codec.MaxUDPSize)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				continue
			}
			raw := make([]byte, n)
			copy(raw, buf[:n])

			select {
			case queue <- udpRequest{raw: raw, addr: addr}:
			case <-gctx.Done():
				return nil
			}
		}
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for req := range queue {
				l.handle(gctx, conn, req)
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

func (l *UDPListener) handle(ctx context.Context, conn *net.UDPConn, req udpRequest) {
	pkt, err := codec.Decode(req.raw)
	if err != nil {
		l.logger().Debug("dropping malformed packet", zap.Error(err), zap.Stringer("from", req.addr))
		return
	}

	resp := l.Handler.Handle(ctx, pkt)

	out, err := resp.Encode()
	if err != nil {
		l.logger().Warn("failed to encode response", zap.Error(err))
		return
	}

	if _, err := conn.WriteTo(out, req.addr); err != nil {
		l.logger().Debug("failed to write response", zap.Error(err), zap.Stringer("to", req.addr))
	}
}

func (l *UDPListener) logger() *zap.Logger {
	if l.Log != nil {
		return l.Log
	}
	return zap.NewNop()
}
