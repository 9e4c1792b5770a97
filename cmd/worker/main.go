package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/notification-worker/internal/config"
	"github.com/kursadbilgin/notification-worker/internal/domain"
	"github.com/kursadbilgin/notification-worker/internal/handler"
	"github.com/kursadbilgin/notification-worker/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-worker/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-worker/internal/infra/redis"
	"github.com/kursadbilgin/notification-worker/internal/observability"
	"github.com/kursadbilgin/notification-worker/internal/queue"
	"github.com/kursadbilgin/notification-worker/internal/repository"
	"github.com/kursadbilgin/notification-worker/internal/service"
	"github.com/kursadbilgin/notification-worker/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 10 * time.Second
	consumerPrefetch = 1
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("notification worker stopped", zap.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()

	var (
		runner service.Runner
		sqlDB  *sql.DB
		rdb    *goredis.Client
	)

	// A misconfigured worker keeps serving so health checks and callers see
	// the problem; every invocation answers 500.
	configErr := cfg.Validate()
	if configErr != nil {
		logger.Error("worker is misconfigured, invocations will fail", zap.Error(configErr))
	} else {
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}

		sqlDB, err = db.DB()
		if err != nil {
			return fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		defer sqlDB.Close()

		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		if rdb != nil {
			defer rdb.Close()
		}

		dispatcher, err := newDispatcher(ctx, cfg, repository.NewGormJobRepo(db), rdb, metrics, logger)
		switch {
		case errors.Is(err, domain.ErrConfiguration):
			configErr = err
			logger.Error("push provider is misconfigured, invocations will fail", zap.Error(err))
		case err != nil:
			return err
		default:
			runner = dispatcher
		}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(fiberrecover.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	handler.RegisterMetricsRoute(app, metrics)
	handler.RegisterWorkerRoutes(app, handler.NewWorkerHandler(runner, handler.WorkerHandlerConfig{
		Secret:    cfg.WorkerSecret,
		ConfigErr: configErr,
	}, logger))

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("notification worker started",
			zap.String("addr", addr),
			zap.String("channel", cfg.WorkerChannel),
			zap.String("pushProvider", cfg.PushProvider),
		)
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if runner != nil && cfg.DispatchInterval > 0 {
		scheduler, err := service.NewScheduler(runner, cfg.DispatchInterval, cfg.DispatchBatchSize, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return scheduler.Start(groupCtx)
		})
	}

	if runner != nil && cfg.RabbitMQURL != "" {
		mq, err := queue.NewRabbitMQWithLogger(cfg.RabbitMQURL, logger)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		consumer := queue.NewRabbitMQConsumer(mq, consumerPrefetch, logger)
		defer consumer.Close() //nolint:errcheck

		triggerHandler := queue.NewRunnerHandler(runner, cfg.DispatchBatchSize, logger)
		g.Go(func() error {
			return consumer.Consume(groupCtx, queue.TriggerQueueName, triggerHandler)
		})
	}

	err := g.Wait()
	logger.Info("notification worker stopped")
	return err
}
