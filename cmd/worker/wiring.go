package main

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-worker/internal/config"
	"github.com/kursadbilgin/notification-worker/internal/domain"
	"github.com/kursadbilgin/notification-worker/internal/formatter"
	infraredis "github.com/kursadbilgin/notification-worker/internal/infra/redis"
	"github.com/kursadbilgin/notification-worker/internal/observability"
	"github.com/kursadbilgin/notification-worker/internal/provider"
	"github.com/kursadbilgin/notification-worker/internal/repository"
	"github.com/kursadbilgin/notification-worker/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// newPushProvider selects the push backend named by PUSH_PROVIDER.
func newPushProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.PushProvider {
	case config.PushProviderSNS:
		p, err := provider.NewSNSProvider(ctx, cfg.AWSRegion, cfg.PushDestination)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.PushProviderGateway, "":
		p, err := provider.NewPushGatewayProvider(provider.GatewayConfig{
			Endpoint:    cfg.PushGatewayURL,
			Token:       cfg.PushToken,
			Destination: cfg.PushDestination,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unsupported PUSH_PROVIDER %q", domain.ErrConfiguration, cfg.PushProvider)
	}
}

func newDispatcher(
	ctx context.Context,
	cfg *config.Config,
	jobs repository.JobRepository,
	rdb *goredis.Client,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*service.Dispatcher, error) {
	pushProvider, err := newPushProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dispatcher := service.NewDispatcher(
		jobs,
		pushProvider,
		formatter.New(cfg.AppBaseURL),
		service.DispatcherConfig{
			Channel:    cfg.WorkerChannel,
			StaleAfter: cfg.StaleProcessingAfter,
		},
		logger,
	)
	dispatcher.SetMetrics(metrics)

	if rdb != nil {
		limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			return nil, fmt.Errorf("rate limiter initialization failed: %w", err)
		}
		dispatcher.SetRateLimiter(limiter)
	}

	return dispatcher, nil
}
