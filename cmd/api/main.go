package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/townhub/rollout-engine/internal/config"
	"github.com/townhub/rollout-engine/internal/directory"
	"github.com/townhub/rollout-engine/internal/handler"
	"github.com/townhub/rollout-engine/internal/infra/postgresql"
	"github.com/townhub/rollout-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/townhub/rollout-engine/internal/infra/redis"
	"github.com/townhub/rollout-engine/internal/observability"
	"github.com/townhub/rollout-engine/internal/queue"
	"github.com/townhub/rollout-engine/internal/repository"
	"github.com/townhub/rollout-engine/internal/service"
	"github.com/townhub/rollout-engine/internal/transport"
	"go.uber.org/zap"
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

	dir, err := directory.NewHTTPDirectory(cfg.DirectoryAPIURL)
	if err != nil {
		logger.Fatal("directory client initialization failed", zap.Error(err))
	}

	publisher := queue.NewRabbitMQPublisher(rabbit)
	rolloutRepo := repository.NewGormRolloutRepo(db)
	communityRepo := repository.NewGormCommunityRolloutRepo(db)
	usageRepo := repository.NewGormUsageRepo(db)

	orchestrator, err := service.NewOrchestrator(rolloutRepo, communityRepo, usageRepo, dir, publisher, logger)
	if err != nil {
		logger.Fatal("orchestrator initialization failed", zap.Error(err))
	}
	orchestrator.SetDefaults(cfg.DefaultBatchSize, cfg.DefaultThrottleMs)

	metrics := observability.NewMetrics()
	orchestrator.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterRolloutRoutes(app, orchestrator); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("rollout-engine api started", zap.Int("port", cfg.APIPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("http server stopped", zap.Error(err))
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := app.Shutdown(); err != nil {
			logger.Error("http server shutdown failed", zap.Error(err))
		}
	}
}
