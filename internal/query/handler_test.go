package query

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmarkets/dns-resolverd/internal/cache"
	"github.com/cmarkets/dns-resolverd/internal/codec"
	"github.com/cmarkets/dns-resolverd/internal/resolve"
)

func TestHandleFormErrOnNoQuestion(t *testing.T) {
	h := &Handler{Cache: cache.New()}
	req := &codec.Packet{Header: codec.Header{ID: 1}}

	resp := h.Handle(context.Background(), req)
	assert.Equal(t, codec.RcodeFormErr, resp.Header.Rcode)
}

func TestHandleServesFromCacheWithoutResolving(t *testing.T) {
	c := cache.New()
	c.Store([]codec.Record{{Name: "example.com", Type: codec.TypeA, TTL: 60, IP: net.IPv4(1, 2, 3, 4)}})

	h := &Handler{Cache: c}
	req := &codec.Packet{
		Header:    codec.Header{ID: 7},
		Questions: []codec.Question{{Name: "example.com", Type: codec.TypeA, Class: codec.ClassIN}},
	}

	resp := h.Handle(context.Background(), req)
	assert.Equal(t, codec.RcodeNoError, resp.Header.Rcode)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, uint16(7), resp.Header.ID)
}

func TestHandleForwardsAndCachesMiss(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.answer("example.com", codec.Record{Name: "example.com", Type: codec.TypeA, TTL: 60, IP: net.IPv4(5, 5, 5, 5)})

	c := cache.New()
	h := &Handler{
		Strategy:    StrategyForward,
		ForwardAddr: upstream.addr,
		Cache:       c,
		Stub:        resolve.NewStub(resolve.DefaultTimeoutPolicy(0)),
	}

	req := &codec.Packet{
		Header:    codec.Header{ID: 9, RecursionDesired: true},
		Questions: []codec.Question{{Name: "example.com", Type: codec.TypeA, Class: codec.ClassIN}},
	}

	resp := h.Handle(context.Background(), req)
	require.Equal(t, codec.RcodeNoError, resp.Header.Rcode)
	require.Len(t, resp.Answers, 1)

	assert.Equal(t, cache.PositiveCache, c.State("example.com", codec.TypeA))
}

func TestHandleSetsRecursionAvailableFromConfig(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.answer("example.com", codec.Record{Name: "example.com", Type: codec.TypeA, TTL: 60, IP: net.IPv4(1, 1, 1, 1)})

	h := &Handler{
		Strategy:       StrategyForward,
		ForwardAddr:    upstream.addr,
		AllowRecursive: true,
		Cache:          cache.New(),
		Stub:           resolve.NewStub(resolve.DefaultTimeoutPolicy(0)),
	}

	req := &codec.Packet{
		Header:    codec.Header{ID: 1},
		Questions: []codec.Question{{Name: "example.com", Type: codec.TypeA, Class: codec.ClassIN}},
	}
	resp := h.Handle(context.Background(), req)
	assert.True(t, resp.Header.RecursionAvailable)
}

func TestHandleAlwaysSetsRecursionDesired(t *testing.T) {
	h := &Handler{Cache: cache.New()}
	req := &codec.Packet{
		Header:    codec.Header{ID: 3, RecursionDesired: false},
		Questions: []codec.Question{{Name: "example.com", Type: codec.TypeA, Class: codec.ClassIN}},
	}

	resp := h.Handle(context.Background(), req)
	assert.True(t, resp.Header.RecursionDesired)
}

func TestHandleCachesNXDomainFromRecursiveResolution(t *testing.T) {
	srv := newFakeUpstream(t) // answers nothing -> NXDOMAIN for every query

	h := &Handler{
		Strategy:  StrategyRecursive,
		Cache:     cache.New(),
		Recursive: resolve.NewRecursive(resolve.NewStub(resolve.DefaultTimeoutPolicy(time.Second))),
	}
	h.Recursive.RootServer = srv.addr

	req := &codec.Packet{
		Header:    codec.Header{ID: 4},
		Questions: []codec.Question{{Name: "nowhere.invalid", Type: codec.TypeA, Class: codec.ClassIN}},
	}

	resp := h.Handle(context.Background(), req)
	assert.Equal(t, codec.RcodeNXDomain, resp.Header.Rcode)
	assert.Equal(t, cache.NegativeCache, h.Cache.State("nowhere.invalid", codec.TypeA))
}

func TestHandleServFailOnUpstreamFailure(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	h := &Handler{
		Strategy:    StrategyForward,
		ForwardAddr: conn.LocalAddr().String(),
		Cache:       cache.New(),
		Stub:        resolve.NewStub(func(string) time.Duration { return 50 * time.Millisecond }),
	}

	req := &codec.Packet{
		Header:    codec.Header{ID: 1},
		Questions: []codec.Question{{Name: "nowhere.invalid", Type: codec.TypeA, Class: codec.ClassIN}},
	}
	resp := h.Handle(context.Background(), req)
	assert.Equal(t, codec.RcodeServFail, resp.Header.Rcode)
}

type fakeUpstream struct {
	conn    net.PacketConn
	addr    string
	records map[string][]codec.Record
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	u := &fakeUpstream{conn: conn, addr: conn.LocalAddr().String(), records: map[string][]codec.Record{}}
	t.Cleanup(func() { conn.Close() })
	go u.serve()
	return u
}

func (u *fakeUpstream) answer(qname string, rr ...codec.Record) {
	u.records[qname] = rr
}

func (u *fakeUpstream) serve() {
	buf := make([]byte, codec.MaxUDPSize)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		req, err := codec.Decode(buf[:n])
		if err != nil || len(req.Questions) == 0 {
			continue
		}
		resp := &codec.Packet{Header: codec.Header{ID: req.Header.ID, Response: true}}
		if rr, ok := u.records[req.Questions[0].Name]; ok {
			resp.Answers = rr
			resp.Header.Rcode = codec.RcodeNoError
		} else {
			resp.Header.Rcode = codec.RcodeNXDomain
		}
		raw, err := resp.Encode()
		if err != nil {
			continue
		}
		u.conn.WriteTo(raw, addr)
	}
}
