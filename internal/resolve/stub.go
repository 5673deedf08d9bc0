package resolve

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/cmarkets/dns-resolverd/internal/codec"
)

// Stub issues single, non-retrying DNS queries over UDP against one
// upstream server -- the forwarding half of resolve_strategy, and the
// transport recursive.go uses to talk to every nameserver it visits.
type Stub struct {
	// Timeout picks the round-trip deadline for a query to a given
	// server address, if ctx carries no earlier deadline. Defaults to a
	// flat 1s policy if nil.
	Timeout TimeoutPolicy
}

// NewStub returns a Stub using policy for per-server timeouts. A nil
// policy falls back to a flat 1-second timeout.
func NewStub(policy TimeoutPolicy) *Stub {
	return &Stub{Timeout: policy}
}

// Lookup sends one query for (qname, qtype) to server ("host:port") and
// returns the parsed reply. recursionDesired sets the request's RD bit.
// The call is a single send/receive; no retry is attempted, matching
// stub-resolver semantics -- callers decide what a failure means.
func (s *Stub) Lookup(ctx context.Context, server string, qname string, qtype codec.QueryType, recursionDesired bool) (*codec.Packet, error) {
	d := time.Second
	if s.Timeout != nil {
		d = s.Timeout(server)
	}
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	conn, err := net.Dial("udp", server)
	if err != nil {
		return nil, fmt.Errorf("resolve: dial %s: %w", server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	req := codec.NewPacket(uint16(rand.Intn(1 << 16)))
	req.Header.RecursionDesired = recursionDesired
	req.Questions = []codec.Question{{Name: qname, Type: qtype, Class: codec.ClassIN}}

	raw, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("resolve: encode query: %w", err)
	}
	if _, err := conn.Write(raw); err != nil {
		return nil, fmt.Errorf("resolve: send query: %w", err)
	}

	buf := make([]byte, codec.MaxUDPSize)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrUpstreamTimeout
		}
		return nil, fmt.Errorf("resolve: receive reply: %w", err)
	}

	resp, err := codec.Decode(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("resolve: decode reply: %w", err)
	}
	return resp, nil
}
