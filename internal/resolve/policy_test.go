package resolve

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTimeoutPolicy(t *testing.T) {
	policy := DefaultTimeoutPolicy(5 * time.Second)

	cases := []struct {
		addr string
		want time.Duration
	}{
		{addr: "10.0.0.1:53", want: 100 * time.Millisecond},
		{addr: "127.0.0.1:53", want: 100 * time.Millisecond},
		{addr: "192.168.1.1:53", want: 100 * time.Millisecond},
		{addr: "8.8.8.8:53", want: 5 * time.Second},
		{addr: "198.41.0.4:53", want: 5 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, policy(tc.addr), tc.addr)
	}
}

func TestMustParseCIDRCoversLoopback(t *testing.T) {
	found := false
	for _, n := range privateNets {
		if n.Contains(net.ParseIP("127.0.0.1")) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestZoneKind(t *testing.T) {
	cases := []struct {
		qname string
		want  string
	}{
		{"www.example.com", "public"},
		{"example.co.uk", "public"},
		{"router.local", "private"},
		{"some-host.internal", "private"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ZoneKind(tc.qname), tc.qname)
	}
}

func TestDepthBudget(t *testing.T) {
	assert.Equal(t, maxNSDepth, depthBudget("www.example.com"))
	assert.Equal(t, maxNSDepthPrivate, depthBudget("router.local"))
}
