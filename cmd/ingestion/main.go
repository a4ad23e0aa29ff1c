// Command ingestion starts the document intake HTTP service.
//
// The service accepts raw documents via POST /api/v1/documents, validates
// them, persists them to the PostgreSQL corpus, and publishes staging events
// to Kafka for the dedup worker. Requests are authenticated with API keys
// and rate limited per key. It provides a health endpoint at GET /health.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/internal/ingest/handler"
	ingestmw "github.com/PaliC/popcorn-data-utils/internal/ingest/middleware"
	"github.com/PaliC/popcorn-data-utils/internal/ingest/publisher"
	"github.com/PaliC/popcorn-data-utils/internal/ingest/ratelimit"
	"github.com/PaliC/popcorn-data-utils/pkg/config"
	"github.com/PaliC/popcorn-data-utils/pkg/kafka"
	"github.com/PaliC/popcorn-data-utils/pkg/logger"
	"github.com/PaliC/popcorn-data-utils/pkg/metrics"
	"github.com/PaliC/popcorn-data-utils/pkg/middleware"
	"github.com/PaliC/popcorn-data-utils/pkg/postgres"
)

// main loads configuration, connects to PostgreSQL, creates the Kafka
// producer, wires up the intake handler behind auth and rate-limit
// middleware, and starts the HTTP server. Graceful shutdown is triggered by
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

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

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentsStaged)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentsStaged)

	pub := publisher.New(store, producer)
	h := handler.New(pub, m, cfg.Ingest.MaxTextBytes)
	limiter := ratelimit.New(cfg.Ingest.RatePerMinute, cfg.Ingest.RateBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /health", h.Health)

	var chain http.Handler = mux
	chain = ingestmw.RateLimit(limiter)(chain)
	chain = ingestmw.Auth(store)(chain)
	chain = middleware.Metrics(m)(chain)
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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
