// Command trigger enqueues one dispatcher invocation on the trigger queue.
// It is meant for external schedulers such as cron.
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-worker/internal/config"
	"github.com/kursadbilgin/notification-worker/internal/observability"
	"github.com/kursadbilgin/notification-worker/internal/queue"
	"go.uber.org/zap"
)

const publishTimeout = 15 * time.Second

func main() {
	batchSize := flag.Int("batch-size", 0, "jobs to process in the invocation (0 uses the worker default)")
	requestedBy := flag.String("requested-by", "cli", "free-form origin recorded in worker logs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Fatal("RABBITMQ_URL is required")
	}

	mq, err := queue.NewRabbitMQWithLogger(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	publisher := queue.NewRabbitMQPublisher(mq)
	defer publisher.Close() //nolint:errcheck

	msg := queue.TriggerMessage{RequestedBy: *requestedBy}
	if *batchSize > 0 {
		msg.BatchSize = batchSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := publisher.Publish(ctx, queue.TriggerQueueName, msg); err != nil {
		logger.Fatal("failed to enqueue trigger", zap.Error(err))
	}
	logger.Info("trigger enqueued", zap.String("queue", queue.TriggerQueueName), zap.Int("batchSize", *batchSize))
}
