package resolve

import (
	"fmt"
	"strings"
	"time"

	"github.com/cmarkets/dns-resolverd/internal/codec"
)

// Trace records every nameserver visited while answering one query, for
// debug logging. Unlike a full query/response dump, it keeps only what's
// useful to explain a delegation path after the fact.
type Trace struct {
	// QueryID correlates this trace with the log lines for the same
	// request; the query package stamps it in after Resolve returns.
	QueryID string
	Steps   []Step
}

// Step is one hop of a resolution: a query sent to Server and what came
// back (or the error that occurred instead).
type Step struct {
	Server     string
	Qname      string
	Qtype      codec.QueryType
	PublicZone bool
	RTT        time.Duration
	Rcode      codec.Rcode
	Err        error
}

func (t *Trace) add(s Step) {
	t.Steps = append(t.Steps, s)
}

// Dump renders the trace as a short multi-line string for logs.
func (t *Trace) Dump() string {
	var b strings.Builder
	if t.QueryID != "" {
		fmt.Fprintf(&b, "query_id=%s\n", t.QueryID)
	}
	for _, s := range t.Steps {
		if s.Err != nil {
			fmt.Fprintf(&b, "? %s %s @%s -> error: %v\n", s.Qtype, s.Qname, s.Server, s.Err)
			continue
		}
		fmt.Fprintf(&b, "? %s %s @%s -> %s (%dms)\n", s.Qtype, s.Qname, s.Server, rcodeName(s.Rcode), s.RTT.Milliseconds())
	}
	return b.String()
}

func rcodeName(r codec.Rcode) string {
	switch r {
	case codec.RcodeNoError:
		return "NOERROR"
	case codec.RcodeFormErr:
		return "FORMERR"
	case codec.RcodeServFail:
		return "SERVFAIL"
	case codec.RcodeNXDomain:
		return "NXDOMAIN"
	case codec.RcodeNotImp:
		return "NOTIMP"
	case codec.RcodeRefused:
		return "REFUSED"
	default:
		return fmt.Sprintf("RCODE%d", r)
	}
}
