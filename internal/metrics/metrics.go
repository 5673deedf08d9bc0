// Package metrics exposes the resolver's runtime counters on an optional
// Prometheus endpoint. It is bound only when the configuration names a
// metrics_addr; the resolver runs perfectly well with this package wired
// in but unused.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the resolver's Prometheus collectors.
type Metrics struct {
	QueriesTotal   *prometheus.CounterVec
	CacheHits      prometheus.Counter
	CacheUpdates   prometheus.Counter
	UpstreamLatency *prometheus.HistogramVec
}

// New registers and returns the resolver's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dns_resolverd_queries_total",
			Help: "Total queries handled, labeled by strategy and response code.",
		}, []string{"strategy", "rcode"}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "dns_resolverd_cache_hits_total",
			Help: "Total cache lookups that returned cached data.",
		}),

		CacheUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "dns_resolverd_cache_updates_total",
			Help: "Total cache store operations.",
		}),

		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dns_resolverd_upstream_latency_seconds",
			Help:    "Round-trip latency of upstream/recursive queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
	}
}

// Serve starts an HTTP server exposing /metrics on addr until ctx is
// cancelled. If addr is empty, Serve returns immediately.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
