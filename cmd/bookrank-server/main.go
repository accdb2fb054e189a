package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/bookrank/pkg/api"
	"github.com/platinummonkey/bookrank/pkg/config"
	"github.com/platinummonkey/bookrank/pkg/httputil"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/ranking"
	"github.com/platinummonkey/bookrank/pkg/stats"
	"github.com/platinummonkey/bookrank/pkg/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	port           = flag.String("port", "", "Port to listen on (overrides BOOKRANK_PORT)")
	healthPort     = flag.String("health-port", "", "Port for health and metrics (overrides BOOKRANK_HEALTH_PORT)")
	skipMigrations = flag.Bool("skip-migrations", false, "Do not apply schema migrations on startup")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *healthPort != "" {
		cfg.Server.HealthPort = *healthPort
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry disabled")
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	backend, err := postgres.Open(ctx, cfg.Storage, logger, metrics)
	if err != nil {
		logger.WithError(err).Error("Failed to open storage")
		os.Exit(1)
	}
	if !*skipMigrations {
		if err := postgres.RunMigrations(ctx, backend.DB(), logger); err != nil {
			logger.WithError(err).Error("Failed to run migrations")
			backend.Close()
			os.Exit(1)
		}
	}

	buffer := stats.NewBuffer(backend.Redis().Client(), stats.Options{
		TTL:       cfg.Stats.TTL,
		Location:  cfg.Location(),
		ScanCount: cfg.Stats.ScanCount,
		Logger:    logger,
		Metrics:   metrics,
	})
	enricher := ranking.NewEnricher(backend.Catalog(), cfg.Enricher(), logger, metrics)
	query := ranking.NewQueryService(backend.Rankings(), enricher, ranking.QueryOptions{
		Location: cfg.Location(),
		Metrics:  metrics,
	})
	health := observability.NewHealthChecker(backend.DB(), buffer)

	var limiter *httputil.RateLimiter
	if rl := cfg.Server.IncrementRateLimit; rl.RequestsPerWindow > 0 {
		limiter = httputil.NewRateLimiter(backend.Redis().Client(), rl, "bookrank:ratelimit:increment")
	}

	apiServer := api.NewServer(api.Options{
		Counters:         buffer,
		Rankings:         query,
		IncrementLimiter: limiter,
		Health:           health,
		Metrics:          metrics,
		Registry:         registry,
		Logger:           logger,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter(health, registry),
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("health-server", healthServer.Shutdown)
	shutdown.Register("storage", func(context.Context) error { return backend.Close() })
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	if metrics != nil {
		go reportPoolStats(ctx, backend, metrics)
	}

	go func() {
		defer observability.RecoverPanic(logger, "health server")
		logger.Infof("Health and metrics listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":     server.Addr,
			"timezone": cfg.Stats.Timezone,
			"cache":    cfg.Storage.CacheEnabled,
		}).Info("Starting bookrank server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// healthRouter serves health checks and metrics on their own port
func healthRouter(health *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", health.Readiness).Methods("GET")
	r.HandleFunc("/health/live", health.Liveness).Methods("GET")
	if registry != nil {
		r.Handle("/metrics", observability.MetricsHandler(registry)).Methods("GET")
	}
	return r
}

func reportPoolStats(ctx context.Context, backend *postgres.Backend, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(backend.Connections().Stats())
			metrics.UpdateRedisStats(backend.Redis().PoolStats())
		}
	}
}
