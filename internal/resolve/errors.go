package resolve

import "errors"

// ErrNXDomain is returned when the final response of a resolution chain is
// NXDOMAIN. It may be wrapped and must be tested for with errors.Is.
var ErrNXDomain = errors.New("resolve: NXDOMAIN response")

// ErrNoGlue is returned internally when an NS record has neither glue in
// the additional section nor a resolvable address; callers see it folded
// into a SERVFAIL, not surfaced directly.
var ErrNoGlue = errors.New("resolve: no usable nameserver address")

// ErrMaxDepthExceeded guards against an NS-to-NS resolution loop.
var ErrMaxDepthExceeded = errors.New("resolve: maximum recursion depth exceeded")

// ErrUpstreamTimeout is returned when a stub lookup's context deadline is
// reached before a reply arrives.
var ErrUpstreamTimeout = errors.New("resolve: upstream timeout")
