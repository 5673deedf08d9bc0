package resolve

import (
	"net"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// TimeoutPolicy determines the round-trip deadline for a single upstream
// query, keyed on the server being queried. A non-positive duration sets
// no deadline of its own; only the caller's context deadline, if any,
// then applies.
type TimeoutPolicy func(serverAddr string) time.Duration

// DefaultTimeoutPolicy assumes low latency to addresses in privateNets and
// gives them a short deadline; everything else gets def.
func DefaultTimeoutPolicy(def time.Duration) TimeoutPolicy {
	return func(serverAddr string) time.Duration {
		ipStr, _, err := net.SplitHostPort(serverAddr)
		if err != nil {
			ipStr = serverAddr
		}
		ip := net.ParseIP(ipStr)

		for _, n := range privateNets {
			if n.Contains(ip) {
				return 100 * time.Millisecond
			}
		}
		return def
	}
}

// privateNets mirrors RFC 1918 and related reserved ranges: upstream
// servers in these ranges are assumed local and fast.
var privateNets = []*net.IPNet{
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("169.254.0.0/16"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("::1/128"),
	mustParseCIDR("fd00::/8"),
	mustParseCIDR("fe80::/10"),
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	return n
}

// isPublicSuffix reports whether fqdn sits under an ICANN-managed public
// suffix (e.g. "www.example.com" under "com"), as opposed to a private or
// reserved zone with no such suffix (e.g. "router.local", "corp.internal").
// Used to tag delegation steps in the resolver trace and to pick the NS
// sub-resolution depth budget.
func isPublicSuffix(fqdn string) bool {
	name := strings.TrimSuffix(fqdn, ".")
	suffix, icann := publicsuffix.PublicSuffix(name)
	return icann && suffix != name
}

// ZoneKind classifies qname for the structured log field of the same name:
// "public" under an ICANN suffix, "private" otherwise.
func ZoneKind(qname string) string {
	if isPublicSuffix(qname) {
		return "public"
	}
	return "private"
}
