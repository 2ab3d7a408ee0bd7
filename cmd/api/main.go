package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/campuspush/fanout-engine/internal/config"
	"github.com/campuspush/fanout-engine/internal/gateway"
	"github.com/campuspush/fanout-engine/internal/handler"
	"github.com/campuspush/fanout-engine/internal/infra/postgresql"
	"github.com/campuspush/fanout-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/campuspush/fanout-engine/internal/infra/redis"
	"github.com/campuspush/fanout-engine/internal/observability"
	"github.com/campuspush/fanout-engine/internal/queue"
	"github.com/campuspush/fanout-engine/internal/repository"
	"github.com/campuspush/fanout-engine/internal/service"
	"github.com/campuspush/fanout-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// One gateway client for the whole process; the Firebase SDK multiplexes
	// connections internally.
	fcmGateway, err := gateway.NewFCMGateway(ctx, cfg.FCMCredentialsFile)
	if err != nil {
		logger.Fatal("fcm gateway initialization failed", zap.Error(err))
	}

	tokenRepo := repository.NewGormTokenRepo(db)
	jobRepo := repository.NewGormJobRepo(db)
	deliveryLogRepo := repository.NewGormDeliveryLogRepo(db)

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.GatewayRateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	dispatcher, err := service.NewDispatcher(
		tokenRepo,
		deliveryLogRepo,
		fcmGateway,
		limiter,
		cfg.GatewayTimeout(),
		cfg.RetryBackoff(),
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	fanoutService, err := service.NewFanoutService(jobRepo, dispatcher, cfg.ImmediateBatchSize, logger)
	if err != nil {
		logger.Fatal("fanout service initialization failed", zap.Error(err))
	}
	fanoutService.SetMetrics(metrics)

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	scheduler, err := service.NewScheduler(
		jobRepo,
		publisher,
		cfg.SchedulerScanInterval(),
		cfg.SchedulerScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	worker, err := service.NewWorker(
		jobRepo,
		consumer,
		dispatcher,
		cfg.WorkerConcurrency,
		cfg.ScheduledBatchSize,
		logger,
	)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	if err := handler.RegisterPushRoutes(app, fanoutService); err != nil {
		logger.Fatal("failed to register push routes", zap.Error(err))
	}
	if err := handler.RegisterDeviceRoutes(app, tokenRepo); err != nil {
		logger.Fatal("failed to register device routes", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("fanout-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Start(groupCtx)
	})

	g.Go(func() error {
		return worker.Start(groupCtx)
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("fanout-engine terminated", zap.Error(err))
	}

	logger.Info("fanout-engine stopped")
}
