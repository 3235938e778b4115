package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"uptime/internal/platform/config"
	"uptime/internal/platform/httpserver"
	"uptime/internal/platform/logger"
	"uptime/internal/validator/agent"
	"uptime/internal/validator/identity"
	"uptime/internal/validator/keys"
	"uptime/internal/validator/metrics"
	"uptime/internal/validator/probe"
)

const shutdownTimeout = 10 * time.Second

// main loads the signing key, connects to the hub, and serves probes until
// interrupted. Startup failures exit non-zero.
func main() {
	cfg, err := config.ValidatorFromEnv()
	if err != nil {
		logger.New("info", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := keys.Select(cfg.KeyFile, "VALIDATOR_PRIVATE_KEY", os.LookupEnv)
	if err != nil {
		log.Error("no signing key configured", "error", err)
		os.Exit(1)
	}
	keypair, err := source.Load(ctx)
	if err != nil {
		log.Error("failed to load signing key", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ident := identity.New()
	prober, err := probe.New(keypair, ident,
		probe.WithTimeout(cfg.ProbeTimeout),
		probe.WithLogger(log),
		probe.WithMetrics(m),
		probe.WithTracer(otel.Tracer("uptime/validator")),
	)
	if err != nil {
		log.Error("failed to build probe handler", "error", err)
		os.Exit(1)
	}

	a, err := agent.New(agent.Config{
		HubURL:  cfg.HubURL,
		IP:      cfg.IP,
		Version: cfg.Version,
		Reconnect: agent.ReconnectPolicy{
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			Multiplier:   cfg.Reconnect.Multiplier,
			Jitter:       cfg.Reconnect.Jitter,
		},
		CallbackTTL:    cfg.CallbackTTL,
		HealthInterval: cfg.HealthLogInterval,
		FailFast:       true,
	}, keypair, agent.NewWebsocketDialer(), prober, ident,
		agent.WithLogger(log),
		agent.WithMetrics(m),
	)
	if err != nil {
		log.Error("failed to build agent", "error", err)
		os.Exit(1)
	}

	log.Info("starting validator",
		"hub_url", cfg.HubURL,
		"public_key", keypair.PublicKeyString(),
		"ops_addr", cfg.OpsAddr,
	)

	g, gctx := errgroup.WithContext(ctx)
	if ops := opsServer(cfg.OpsAddr, a, reg); ops != nil {
		g.Go(func() error {
			return httpserver.Serve(gctx, ops, shutdownTimeout)
		})
	} else {
		log.Info("ops listener disabled")
	}
	g.Go(func() error {
		defer stop()
		return a.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("validator stopped", "error", err)
		os.Exit(1)
	}
	log.Info("validator stopped")
}

// opsServer returns nil when addr is empty.
func opsServer(addr string, a *agent.Agent, reg *prometheus.Registry) *http.Server {
	if addr == "" {
		return nil
	}
	return httpserver.New(addr, opsRouter(a, reg))
}

func opsRouter(a *agent.Agent, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(a.State().String()))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}
