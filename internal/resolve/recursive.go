package resolve

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/cmarkets/dns-resolverd/internal/codec"
)

// RootServer is the well-known A-root server address used to bootstrap
// every recursive resolution.
const RootServer = "198.41.0.4:53"

// maxNSDepth bounds how many levels of "resolve this NS host's own A
// record" recursion a single top-level query may trigger, guarding against
// a delegation cycle between nameservers that never bottom out in glue.
// It applies to subtrees under a public suffix; maxNSDepthPrivate applies
// everywhere else.
const maxNSDepth = 16

// maxNSDepthPrivate bounds NS sub-resolution under private/reserved zones
// (no recognized public suffix, e.g. "router.local"), which have no
// business delegating through many unglued hops.
const maxNSDepthPrivate = 4

// depthBudget picks the NS sub-resolution depth budget for qname based on
// its zone kind (see ZoneKind).
func depthBudget(qname string) int {
	if isPublicSuffix(qname) {
		return maxNSDepth
	}
	return maxNSDepthPrivate
}

// Recursive resolves a query by walking the delegation chain from a root
// nameserver, following referrals until an authoritative answer or
// NXDOMAIN is reached.
type Recursive struct {
	Stub *Stub

	// RootServer is the bootstrap nameserver address ("ip:port"),
	// defaulting to RootServer. Tests override it to point at an
	// in-process fake root.
	RootServer string

	// nsPort is the port assumed for any nameserver address derived from
	// an NS/glue record, since those records only ever carry a hostname
	// or bare IP. It defaults to "53"; tests override it to match
	// wherever the fake authoritative servers are actually listening.
	nsPort string
}

// NewRecursive returns a Recursive resolver using stub for its wire
// transport, bootstrapping from the real root servers on port 53.
func NewRecursive(stub *Stub) *Recursive {
	return &Recursive{Stub: stub, RootServer: RootServer, nsPort: "53"}
}

// Resolve looks up (qname, qtype), returning the last response received
// along with a Trace of every nameserver visited. The returned packet is
// whatever the authoritative server sent: the resolver does not follow
// CNAMEs itself.
//
// A non-nil error does not always mean the returned packet should be
// discarded: if the final authoritative response was NXDOMAIN, Resolve
// returns that response alongside ErrNXDomain (test with errors.Is) so
// callers can both log the failure mode and still answer from it.
func (r *Recursive) Resolve(ctx context.Context, qname string, qtype codec.QueryType) (*codec.Packet, *Trace, error) {
	trace := &Trace{}
	server := r.RootServer
	if server == "" {
		server = RootServer
	}

	pkt, err := r.resolveFrom(ctx, server, qname, qtype, trace, 0)
	return pkt, trace, err
}

func (r *Recursive) resolveFrom(ctx context.Context, server, qname string, qtype codec.QueryType, trace *Trace, depth int) (*codec.Packet, error) {
	var last *codec.Packet

	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		start := time.Now()
		resp, err := r.Stub.Lookup(ctx, server, qname, qtype, false)
		rtt := time.Since(start)

		step := Step{Server: server, Qname: qname, Qtype: qtype, PublicZone: isPublicSuffix(qname), RTT: rtt}
		if err != nil {
			step.Err = err
			trace.add(step)
			return last, err
		}
		step.Rcode = resp.Header.Rcode
		trace.add(step)
		last = resp

		if len(resp.Answers) > 0 && resp.Header.Rcode == codec.RcodeNoError {
			return resp, nil
		}
		if resp.Header.Rcode == codec.RcodeNXDomain {
			return resp, ErrNXDomain
		}

		nextServer, err := r.nextServer(ctx, resp, qname, trace, depth)
		if err != nil {
			return last, err
		}
		if nextServer == "" {
			return resp, nil
		}
		server = nextServer
	}
}

// nextServer picks where to send the next query in the delegation chain:
// an NS record from the authority section whose owner is a suffix of
// qname, preferring its glue address from the additional section and
// falling back to recursively resolving the NS host's own A record. An
// empty address with a nil error means resp carried no referral at all and
// should be treated as the final answer (e.g. a terminal NODATA). A
// non-nil error means a referral was offered but could not be followed.
func (r *Recursive) nextServer(ctx context.Context, resp *codec.Packet, qname string, trace *Trace, depth int) (string, error) {
	var candidates []string
	for _, rr := range resp.Authorities {
		if rr.Type != codec.TypeNS {
			continue
		}
		if !isSuffix(qname, rr.Name) {
			continue
		}
		candidates = append(candidates, rr.Host)
	}
	if len(candidates) == 0 {
		return "", nil
	}

	port := r.nsPort
	if port == "" {
		port = "53"
	}

	for _, host := range candidates {
		for _, rr := range resp.Additionals {
			if rr.Type == codec.TypeA && strings.EqualFold(rr.Name, host) {
				return net.JoinHostPort(rr.IP.String(), port), nil
			}
		}
	}

	if depth >= depthBudget(qname) {
		return "", ErrMaxDepthExceeded
	}

	root := r.RootServer
	if root == "" {
		root = RootServer
	}

	for _, host := range candidates {
		sub, err := r.resolveFrom(ctx, root, host, codec.TypeA, trace, depth+1)
		if err != nil || sub == nil {
			continue
		}
		for _, rr := range sub.Answers {
			if rr.Type == codec.TypeA {
				return net.JoinHostPort(rr.IP.String(), port), nil
			}
		}
	}

	return "", ErrNoGlue
}

// isSuffix reports whether ns is qname itself or an ancestor zone of it,
// comparing labels case-insensitively with trailing dots ignored.
func isSuffix(qname, ns string) bool {
	q := strings.ToLower(strings.TrimSuffix(qname, "."))
	n := strings.ToLower(strings.TrimSuffix(ns, "."))
	if n == "" {
		return true
	}
	return q == n || strings.HasSuffix(q, "."+n)
}
