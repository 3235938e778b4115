package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"uptime/internal/hub"
	jwttoken "uptime/internal/jwt_token"
	"uptime/internal/platform/config"
	"uptime/internal/platform/httpserver"
	"uptime/internal/platform/logger"
	"uptime/internal/platform/metrics"
	"uptime/internal/website/handler"
	"uptime/internal/website/service"
	dErrors "uptime/pkg/domain-errors"
	"uptime/pkg/platform/httputil"
	"uptime/pkg/platform/middleware/metadata"
	"uptime/pkg/platform/middleware/request"
)

const shutdownTimeout = 10 * time.Second

// main wires the record API and the validator hub. Postgres, Redis and Kafka
// are each optional; without them the hub runs on in-memory stores.
func main() {
	cfg, err := config.HubFromEnv()
	if err != nil {
		logger.New("info", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warnOnDevKey(cfg, log)
	jwtService, err := jwttoken.FromConfig(cfg.JWTPublicKey, cfg.JWTSigningKey)
	if err != nil {
		log.Error("failed to configure token validation", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backing, err := buildInfra(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize infrastructure", "error", err)
		os.Exit(1)
	}
	defer backing.Close()

	websites := service.New(backing.Store,
		service.WithLogger(log),
		service.WithPublisher(backing.Publisher),
		service.WithMetrics(m),
	)

	h, err := hub.New(backing.Identities, websites,
		hub.WithLogger(log),
		hub.WithMetrics(m),
		hub.WithTracer(otel.Tracer("uptime/hub")),
		hub.WithResultTTL(cfg.ResultTTL),
	)
	if err != nil {
		log.Error("failed to build hub", "error", err)
		os.Exit(1)
	}

	api := httpserver.New(cfg.APIAddr, apiRouter(cfg, log, websites, jwtService, reg, backing.Ready))
	hubServer := httpserver.New(cfg.HubAddr, h)

	log.Info("starting hub",
		"api_addr", cfg.APIAddr,
		"hub_addr", cfg.HubAddr,
		"dispatch_interval", cfg.DispatchInterval,
		"postgres", cfg.DatabaseURL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, api, shutdownTimeout)
	})
	g.Go(func() error {
		return httpserver.Serve(gctx, hubServer, shutdownTimeout)
	})
	g.Go(func() error {
		// Shutdown does not reach hijacked websocket connections.
		<-gctx.Done()
		h.Close()
		return nil
	})
	g.Go(func() error {
		return h.Run(gctx, cfg.DispatchInterval)
	})

	if err := g.Wait(); err != nil {
		log.Error("hub stopped", "error", err)
		os.Exit(1)
	}
	log.Info("hub stopped")
}

// warnOnDevKey reports whether the record API is running on the built-in
// development signing key.
func warnOnDevKey(cfg config.Hub, log *slog.Logger) bool {
	if !cfg.JWTDevKey {
		return false
	}
	log.Warn("JWT_SIGNING_KEY and JWT_PUBLIC_KEY are unset, using the development signing key; anyone can mint API tokens")
	return true
}

func apiRouter(cfg config.Hub, log *slog.Logger, websites *service.Service, jwtService *jwttoken.JWTService, reg *prometheus.Registry, ready func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", request.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handler.New(websites, log, jwttoken.NewJWTServiceAdapter(jwtService)).Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			log.WarnContext(ctx, "readiness check failed", "error", err)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "backing service unavailable"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	return r
}
