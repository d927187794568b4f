// Command server starts the evaluation scoring HTTP API.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/ai/real"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/ai/stub"
	draftcache "github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/cache/redis"
	httpserver "github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/app"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/engine"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/service/ratelimiter"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/usecase"
)

const (
	disagreementWindow    = 50
	disagreementThreshold = 0.25
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

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

	// Infra: DB pool
	pool, err := postgres.NewPool(ctx, cfg.DBURL, cfg.GetDBPoolConfig())
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Infra: Redis for trainer drafts and the shared AI rate limit
	redisOpts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid redis url", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := goredis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// Score change events
	producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.KafkaScoreTopic, cfg.KafkaTopicPartitions)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close producer", slog.Any("error", err))
		}
	}()

	var grader domain.AIGrader
	if cfg.UseStubGrader() {
		grader = stub.New(cat)
		slog.Warn("AI_API_KEY not set, using the deterministic stub grader")
	} else {
		limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			"ai": ratelimiter.NewBucketConfigFromPerMinute(cfg.AIRateLimitPerMin),
		})
		grader = real.New(cfg, limiter)
		slog.Info("AI grader initialized", slog.String("model", cfg.AIModel), slog.Int("rate_limit_per_min", cfg.AIRateLimitPerMin))
	}

	// Repositories
	states := postgres.NewExerciseStateRepo(pool)
	rollups := postgres.NewRollupRepo(pool)
	drafts := draftcache.NewDraftStore(rdb, cfg.DraftTTL)

	// Usecases
	writer := usecase.NewStateWriter(states, producer, cfg.GetRetryConfig())
	monitor := observability.NewDisagreementMonitor(disagreementWindow, disagreementThreshold, logger)
	exerciseSvc := usecase.NewExerciseService(eng, writer)
	evalSvc := usecase.NewEvaluationService(eng, grader, writer, monitor)
	trainerSvc := usecase.NewTrainerService(eng, drafts, writer, monitor)
	certSvc := usecase.NewCertificationService(eng, states, rollups)

	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.IsProd() {
			slog.Error("JWT_SECRET is required in prod")
			os.Exit(1)
		}
		secret = randomSecret()
		slog.Warn("JWT_SECRET not set, tokens will not survive a restart")
	}
	tokens := httpserver.NewTokenManager(secret, cfg.JWTTTL)

	dbCheck, redisCheck, kafkaCheck := app.BuildReadinessChecks(pool, rdb, producer)

	// HTTP server
	srv := httpserver.NewServer(cfg, tokens, exerciseSvc, evalSvc, trainerSvc, certSvc, dbCheck, redisCheck, kafkaCheck)
	handler := app.BuildRouter(cfg, srv, logger)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
