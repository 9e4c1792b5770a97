package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/notification-worker/internal/domain"
)

const (
	PushProviderGateway = "gateway"
	PushProviderSNS     = "sns"
)

// Config is loaded once at startup and passed explicitly to every component.
// Store and push settings are validated separately so a misconfigured process
// still serves health checks and reports the problem per invocation.
type Config struct {
	DatabaseDSN          string        `env:"DATABASE_DSN"`
	PushProvider         string        `env:"PUSH_PROVIDER,default=gateway"`
	PushGatewayURL       string        `env:"PUSH_GATEWAY_URL"`
	PushToken            string        `env:"PUSH_TOKEN"`
	PushDestination      string        `env:"PUSH_DESTINATION"`
	AWSRegion            string        `env:"AWS_REGION"`
	WorkerChannel        string        `env:"WORKER_CHANNEL,default=push"`
	WorkerSecret         string        `env:"WORKER_SECRET"`
	AppBaseURL           string        `env:"APP_BASE_URL"`
	RedisURL             string        `env:"REDIS_URL"`
	RateLimitPerSec      int           `env:"RATE_LIMIT_PER_SEC,default=20"`
	RabbitMQURL          string        `env:"RABBITMQ_URL"`
	DispatchInterval     time.Duration `env:"DISPATCH_INTERVAL,default=0s"`
	DispatchBatchSize    int           `env:"DISPATCH_BATCH_SIZE,default=20"`
	StaleProcessingAfter time.Duration `env:"STALE_PROCESSING_AFTER,default=15m"`
	APIPort              int           `env:"API_PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.PushProvider = strings.ToLower(strings.TrimSpace(cfg.PushProvider))
	return &cfg, nil
}

// Validate reports every missing store or push setting in one error wrapping
// domain.ErrConfiguration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is not loaded", domain.ErrConfiguration)
	}

	var missing []string
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		missing = append(missing, "DATABASE_DSN")
	}
	if strings.TrimSpace(c.WorkerChannel) == "" {
		missing = append(missing, "WORKER_CHANNEL")
	}
	if strings.TrimSpace(c.PushDestination) == "" {
		missing = append(missing, "PUSH_DESTINATION")
	}

	switch c.PushProvider {
	case PushProviderGateway, "":
		if strings.TrimSpace(c.PushGatewayURL) == "" {
			missing = append(missing, "PUSH_GATEWAY_URL")
		}
		if strings.TrimSpace(c.PushToken) == "" {
			missing = append(missing, "PUSH_TOKEN")
		}
	case PushProviderSNS:
		if strings.TrimSpace(c.AWSRegion) == "" {
			missing = append(missing, "AWS_REGION")
		}
	default:
		return fmt.Errorf("%w: unsupported PUSH_PROVIDER %q", domain.ErrConfiguration, c.PushProvider)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
