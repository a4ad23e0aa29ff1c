// Command report starts the read-side reporting HTTP service.
//
// The service serves run reports, kept-document listings, candidate
// histograms, and corpus status from PostgreSQL, with a Redis cache in front
// of the heavier queries. A Kafka consumer invalidates the cache whenever the
// dedup worker announces a completed run.
//
// Usage:
//
//	go run ./cmd/report [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/internal/report"
	"github.com/PaliC/popcorn-data-utils/pkg/config"
	"github.com/PaliC/popcorn-data-utils/pkg/health"
	"github.com/PaliC/popcorn-data-utils/pkg/kafka"
	"github.com/PaliC/popcorn-data-utils/pkg/logger"
	"github.com/PaliC/popcorn-data-utils/pkg/metrics"
	"github.com/PaliC/popcorn-data-utils/pkg/middleware"
	"github.com/PaliC/popcorn-data-utils/pkg/postgres"
	"github.com/PaliC/popcorn-data-utils/pkg/redis"
)

// main loads configuration, connects to PostgreSQL and Redis, starts the
// cache invalidation consumer, and serves the report API until
// SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting report service", "port", cfg.Server.Port)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := corpus.NewStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure corpus schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("connected to redis")

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	cache := report.NewRunCache(redisClient, cfg.Redis.CacheTTL, m)
	service := report.NewService(store, cache, cfg.Report)
	h := report.NewHandler(service, cfg.Report.DefaultLimit, cfg.Report.MaxLimit)

	invalidator := report.NewInvalidationConsumer(kafka.NewConsumer(
		cfg.Kafka, cfg.Kafka.Topics.RunsCompleted, report.HandleRunCompleted(cache)))
	go func() {
		if err := invalidator.Start(ctx); err != nil {
			slog.Error("invalidation consumer stopped", "error", err)
		}
	}()
	slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.RunsCompleted)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := store.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Report.QueryTimeout + 5*time.Second)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("report service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("report service stopped")
}
