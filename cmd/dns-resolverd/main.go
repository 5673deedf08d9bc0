// Command dns-resolverd runs the caching DNS resolver: it loads the JSON
// configuration, starts the UDP/TCP listeners it describes, and watches
// the file for changes for the lifetime of the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cmarkets/dns-resolverd/internal/cache"
	"github.com/cmarkets/dns-resolverd/internal/config"
	"github.com/cmarkets/dns-resolverd/internal/listen"
	"github.com/cmarkets/dns-resolverd/internal/metrics"
	"github.com/cmarkets/dns-resolverd/internal/query"
	"github.com/cmarkets/dns-resolverd/internal/resolve"
)

func main() {
	configPath := flag.String("config", "server_config.json", "path to the JSON configuration file")
	flag.Parse()

	log := newLogger("info")
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	log = newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := cache.New()
	mtx := metrics.New(prometheus.DefaultRegisterer)
	handler := buildHandler(cfg, c, mtx, log)

	sup := listen.NewSupervisor(handler, log)
	sup.Reload(ctx, toSettings(cfg))

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	go func() {
		err := config.Watch(ctx, *configPath, log, func(next *config.Config) {
			log.Info("reloading config", zap.String("path", *configPath))
			handler2 := buildHandler(next, c, mtx, log)
			sup.Handler = handler2
			sup.Reload(ctx, toSettings(next))
			cfg = next
		})
		if err != nil {
			log.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	log.Info("dns-resolverd started",
		zap.String("addr", net.JoinHostPort(cfg.DNSHost, fmt.Sprint(cfg.DNSPort))),
		zap.Bool("udp", cfg.EnableUDP),
		zap.Bool("tcp", cfg.EnableTCP),
	)

	<-ctx.Done()
	log.Info("shutting down")
	sup.Shutdown()
}

func buildHandler(cfg *config.Config, c *cache.Cache, mtx *metrics.Metrics, log *zap.Logger) *query.Handler {
	timeout := time.Duration(cfg.UpstreamTimeoutMS) * time.Millisecond
	stub := resolve.NewStub(resolve.DefaultTimeoutPolicy(timeout))

	h := &query.Handler{
		AllowRecursive: cfg.AllowRecursive,
		Cache:          c,
		Stub:           stub,
		Log:            log,
		Metrics:        mtx,
	}

	if cfg.ResolveStrategy.Forward != nil {
		h.Strategy = query.StrategyForward
		h.ForwardAddr = net.JoinHostPort(cfg.ResolveStrategy.Forward.Host, fmt.Sprint(cfg.ResolveStrategy.Forward.Port))
	} else {
		h.Strategy = query.StrategyRecursive
		h.Recursive = resolve.NewRecursive(stub)
	}

	return h
}

func toSettings(cfg *config.Config) listen.Settings {
	return listen.Settings{
		Addr:        net.JoinHostPort(cfg.DNSHost, fmt.Sprint(cfg.DNSPort)),
		EnableUDP:   cfg.EnableUDP,
		EnableTCP:   cfg.EnableTCP,
		ThreadCount: cfg.ThreadCount,
	}
}

func newLogger(level string) *zap.Logger {
	var zlevel zapcore.Level
	if err := zlevel.Set(level); err != nil {
		zlevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zlevel)

	log, err := cfg.Build()
	if err != nil {
		log = zap.NewNop()
	}
	return log
}
