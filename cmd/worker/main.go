// Package main provides the certification projector entry point.
// The worker consumes score change events and recomputes learner rollups.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/engine"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Metrics live on a dedicated port so Prometheus can scrape the projector.
	observability.InitMetrics()
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cat, err := config.LoadCatalogue(cfg.RubricCataloguePath)
	if err != nil {
		slog.Error("rubric catalogue invalid", slog.Any("error", err))
		os.Exit(1)
	}
	eng, err := engine.New(cat)
	if err != nil {
		slog.Error("engine init failed", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := postgres.NewPool(ctx, cfg.DBURL, cfg.GetDBPoolConfig())
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	certSvc := usecase.NewCertificationService(eng, postgres.NewExerciseStateRepo(pool), postgres.NewRollupRepo(pool))

	consumer, err := redpanda.NewConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaScoreTopic, cfg.KafkaTopicPartitions, certSvc.HandleEvent)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	slog.Info("worker started, waiting for score events")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer stopped", slog.Any("error", err))
	}

	slog.Info("signal received, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
