// Command dedup starts the deduplication worker.
//
// The worker consumes staging events from Kafka to keep corpus rows in the
// STAGED state, and executes deduplication runs over the corpus snapshot when
// triggered through its JSON-RPC control port. Run verdicts are written back
// to PostgreSQL and a completion event is published to Kafka so read-side
// caches can invalidate. Liveness and readiness endpoints are served over
// HTTP.
//
// Usage:
//
//	go run ./cmd/dedup [-config configs/development.yaml]
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
	"github.com/PaliC/popcorn-data-utils/internal/dedup"
	"github.com/PaliC/popcorn-data-utils/internal/worker"
	"github.com/PaliC/popcorn-data-utils/pkg/config"
	"github.com/PaliC/popcorn-data-utils/pkg/health"
	"github.com/PaliC/popcorn-data-utils/pkg/kafka"
	"github.com/PaliC/popcorn-data-utils/pkg/logger"
	"github.com/PaliC/popcorn-data-utils/pkg/metrics"
	"github.com/PaliC/popcorn-data-utils/pkg/postgres"
	"github.com/PaliC/popcorn-data-utils/pkg/rpc"
)

// main loads configuration, connects to PostgreSQL and Kafka, starts the
// staging consumer and the RPC control server, and serves health probes until
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
	slog.Info("starting dedup worker", "control_port", cfg.Worker.ControlPort)

	params := dedup.Params{
		NgramSize:   cfg.Dedup.NgramSize,
		Bands:       cfg.Dedup.Bands,
		RowsPerBand: cfg.Dedup.RowsPerBand,
		Threshold:   cfg.Dedup.Threshold,
		Workers:     cfg.Dedup.Workers,
	}
	if err := params.Validate(); err != nil {
		slog.Error("invalid dedup parameters", "error", err)
		os.Exit(1)
	}

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

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RunsCompleted)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.RunsCompleted)

	runner := worker.NewRunner(ctx, store, producer, m, worker.RunnerConfig{
		Defaults:      params,
		SnapshotLimit: cfg.Worker.SnapshotLimit,
	})

	staging := worker.NewStagingConsumer(kafka.NewConsumer(
		cfg.Kafka, cfg.Kafka.Topics.DocumentsStaged, worker.HandleStagedDocument(store)))
	go func() {
		if err := staging.Start(ctx); err != nil {
			slog.Error("staging consumer stopped", "error", err)
		}
	}()
	slog.Info("staging consumer started", "topic", cfg.Kafka.Topics.DocumentsStaged)

	rpcServer := rpc.NewServer()
	worker.RegisterRPC(rpcServer, runner)
	go func() {
		if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.Worker.ControlPort)); err != nil {
			slog.Error("rpc server stopped", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := store.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("runner", func(ctx context.Context) health.ComponentHealth {
		if runID := runner.Active(); runID != "" {
			return health.ComponentHealth{Status: health.StatusUp, Message: "run " + runID + " executing"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "idle"}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		rpcServer.Stop()
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("dedup worker ready",
		"health_addr", server.Addr,
		"control_port", cfg.Worker.ControlPort,
		"snapshot_limit", cfg.Worker.SnapshotLimit)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("dedup worker stopped")
}
