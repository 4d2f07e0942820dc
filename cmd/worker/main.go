package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/townhub/rollout-engine/internal/config"
	"github.com/townhub/rollout-engine/internal/enrich"
	"github.com/townhub/rollout-engine/internal/infra/postgresql"
	"github.com/townhub/rollout-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/townhub/rollout-engine/internal/infra/redis"
	"github.com/townhub/rollout-engine/internal/observability"
	"github.com/townhub/rollout-engine/internal/queue"
	"github.com/townhub/rollout-engine/internal/repository"
	"github.com/townhub/rollout-engine/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	provider, err := enrich.NewHTTPProvider(cfg.EnrichmentAPIURL)
	if err != nil {
		logger.Fatal("enrichment provider initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	locker, err := infraredis.NewRolloutLock(rdb, time.Duration(cfg.AdvanceLockTTLSec)*time.Second)
	if err != nil {
		logger.Fatal("rollout lock initialization failed", zap.Error(err))
	}

	rolloutRepo := repository.NewGormRolloutRepo(db)
	communityRepo := repository.NewGormCommunityRolloutRepo(db)
	usageRepo := repository.NewGormUsageRepo(db)
	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	metrics := observability.NewMetrics()

	advancer, err := service.NewAdvancer(rolloutRepo, communityRepo, usageRepo, provider, limiter, logger)
	if err != nil {
		logger.Fatal("advancer initialization failed", zap.Error(err))
	}
	advancer.SetMetrics(metrics)

	worker, err := service.NewAdvanceWorker(advancer, consumer, publisher, locker, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("advance worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	scanner, err := service.NewRecoveryScanner(
		rolloutRepo,
		publisher,
		time.Duration(cfg.RecoveryScanSec)*time.Second,
		time.Duration(cfg.RecoveryStaleSec)*time.Second,
		logger,
	)
	if err != nil {
		logger.Fatal("recovery scanner initialization failed", zap.Error(err))
	}
	scanner.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("rollout-engine worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("rateLimitPerSec", cfg.RateLimitPerSec),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return worker.Start(groupCtx) })
	group.Go(func() error { return scanner.Start(groupCtx) })

	if err := group.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}
