// Package query turns an inbound request packet into an outbound response,
// dispatching to either recursive resolution or upstream forwarding and
// populating the cache with whatever was learned along the way.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cmarkets/dns-resolverd/internal/cache"
	"github.com/cmarkets/dns-resolverd/internal/codec"
	"github.com/cmarkets/dns-resolverd/internal/metrics"
	"github.com/cmarkets/dns-resolverd/internal/resolve"
)

// Strategy selects how a Handler resolves queries it doesn't already have
// cached.
type Strategy int

const (
	// StrategyRecursive walks the delegation chain from a root server.
	StrategyRecursive Strategy = iota
	// StrategyForward sends every query to one fixed upstream server.
	StrategyForward
)

// Handler answers one DNS request at a time. It is safe for concurrent
// use; all mutable state lives in Cache, which has its own locking.
type Handler struct {
	Strategy    Strategy
	ForwardAddr string // "host:port", used when Strategy == StrategyForward

	AllowRecursive bool

	Cache     *cache.Cache
	Recursive *resolve.Recursive
	Stub      *resolve.Stub

	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func (h *Handler) strategyLabel() string {
	if h.Strategy == StrategyForward {
		return "forward"
	}
	return "recursive"
}

// Handle builds the response to req. It never returns nil: on any
// internal failure the response carries RcodeServFail.
func (h *Handler) Handle(ctx context.Context, req *codec.Packet) *codec.Packet {
	resp := &codec.Packet{
		Header: codec.Header{
			ID:                 req.Header.ID,
			Response:           true,
			Opcode:             req.Header.Opcode,
			RecursionDesired:   true,
			RecursionAvailable: h.AllowRecursive,
		},
	}

	if len(req.Questions) == 0 {
		resp.Header.Rcode = codec.RcodeFormErr
		return resp
	}

	q := req.Questions[0]
	resp.Questions = []codec.Question{q}
	queryID := uuid.NewString()
	log := h.logger().With(
		zap.String("query_id", queryID),
		zap.String("qname", q.Name),
		zap.Stringer("qtype", q.Type),
		zap.String("zone_kind", resolve.ZoneKind(q.Name)),
	)

	if cached, ok := h.Cache.Lookup(q.Name, q.Type); ok {
		log.Debug("cache hit", zap.Stringer("rcode", cached.Header.Rcode))
		resp.Header.Rcode = cached.Header.Rcode
		resp.Answers = cached.Answers
		resp.Authorities = cached.Authorities
		h.recordQuery(resp.Header.Rcode)
		if h.Metrics != nil {
			h.Metrics.CacheHits.Inc()
		}
		return resp
	}

	start := time.Now()
	result, trace, err := h.resolve(ctx, q.Name, q.Type)
	elapsed := time.Since(start)
	if trace != nil {
		trace.QueryID = queryID
	}
	if h.Metrics != nil {
		h.Metrics.UpstreamLatency.WithLabelValues(h.strategyLabel()).Observe(elapsed.Seconds())
	}
	if err != nil && !errors.Is(err, resolve.ErrNXDomain) {
		log.Warn("resolution failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		if trace != nil {
			log.Debug("resolution trace", zap.String("trace", trace.Dump()))
		}
		resp.Header.Rcode = codec.RcodeServFail
		h.recordQuery(resp.Header.Rcode)
		return resp
	}
	if err != nil {
		log.Debug("resolution reached NXDOMAIN", zap.Duration("elapsed", elapsed))
	}
	if result.Header.Rcode == codec.RcodeServFail || result.Header.Rcode == codec.RcodeRefused {
		log.Warn("upstream failure", zap.Stringer("rcode", result.Header.Rcode), zap.Duration("elapsed", elapsed))
		resp.Header.Rcode = codec.RcodeServFail
		h.recordQuery(resp.Header.Rcode)
		return resp
	}

	h.store(q.Name, q.Type, result)

	resp.Header.Rcode = result.Header.Rcode
	resp.Answers = result.Answers
	resp.Authorities = result.Authorities
	resp.Additionals = result.Additionals

	log.Debug("resolved", zap.Stringer("rcode", result.Header.Rcode), zap.Duration("elapsed", elapsed))
	h.recordQuery(resp.Header.Rcode)
	return resp
}

func (h *Handler) recordQuery(rcode codec.Rcode) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.QueriesTotal.WithLabelValues(h.strategyLabel(), rcode.String()).Inc()
}

// resolve dispatches to the configured strategy. The returned trace is
// nil under StrategyForward, which has no delegation path to record.
func (h *Handler) resolve(ctx context.Context, qname string, qtype codec.QueryType) (*codec.Packet, *resolve.Trace, error) {
	switch h.Strategy {
	case StrategyForward:
		if h.Stub == nil {
			return nil, nil, errors.New("query: no stub client configured")
		}
		pkt, err := h.Stub.Lookup(ctx, h.ForwardAddr, qname, qtype, true)
		return pkt, nil, err
	default:
		if h.Recursive == nil {
			return nil, nil, errors.New("query: no recursive resolver configured")
		}
		return h.Recursive.Resolve(ctx, qname, qtype)
	}
}

// negativeTTL is used when caching an NXDOMAIN result that carried no SOA
// minimum of its own to borrow a TTL from (this resolver does not parse
// the authority section's SOA record for that purpose).
const negativeTTL = 300

// store caches every record the response carried, plus an explicit
// negative entry when the authoritative answer was NXDOMAIN -- the
// original query's (qname, qtype) pair wouldn't otherwise be recorded,
// since an NXDOMAIN response carries no record naming it.
func (h *Handler) store(qname string, qtype codec.QueryType, result *codec.Packet) {
	var all []codec.Record
	all = append(all, result.Answers...)
	all = append(all, result.Authorities...)
	all = append(all, result.Additionals...)
	h.Cache.Store(all)

	if result.Header.Rcode == codec.RcodeNXDomain {
		h.Cache.StoreNXDomain(qname, qtype, negativeTTL)
	}

	if h.Metrics != nil {
		h.Metrics.CacheUpdates.Add(float64(len(all)))
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Log != nil {
		return h.Log
	}
	return zap.NewNop()
}
