package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-worker/internal/domain"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	maxErrorBodyLength    = 1000
)

type gatewayRequest struct {
	Destination string `json:"destination"`
	Text        string `json:"text"`
}

// GatewayConfig holds the push gateway endpoint and credentials.
type GatewayConfig struct {
	Endpoint    string
	Token       string
	Destination string
}

// PushGatewayProvider posts rendered text to an HTTP messaging gateway.
type PushGatewayProvider struct {
	client      *resty.Client
	endpoint    string
	token       string
	destination string
}

func NewPushGatewayProvider(cfg GatewayConfig) (*PushGatewayProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewPushGatewayProviderWithClient(cfg, client)
}

func NewPushGatewayProviderWithClient(cfg GatewayConfig, client *resty.Client) (*PushGatewayProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	token := strings.TrimSpace(cfg.Token)
	destination := strings.TrimSpace(cfg.Destination)

	if endpoint == "" {
		return nil, fmt.Errorf("%w: push gateway url is required", domain.ErrConfiguration)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("%w: invalid push gateway url: %v", domain.ErrConfiguration, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: push token is required", domain.ErrConfiguration)
	}
	if destination == "" {
		return nil, fmt.Errorf("%w: push destination is required", domain.ErrConfiguration)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	return &PushGatewayProvider{
		client:      client,
		endpoint:    endpoint,
		token:       token,
		destination: destination,
	}, nil
}

func (p *PushGatewayProvider) Send(ctx context.Context, text string) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("%w: provider is not initialized", domain.ErrConfiguration)
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(p.token).
		SetBody(gatewayRequest{
			Destination: p.destination,
			Text:        text,
		}).
		Post(p.endpoint)
	if err != nil {
		return nil, transportError(err)
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &ProviderResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  providerMessageID(response),
		}, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, domain.Truncate(body, maxErrorBodyLength))
}

func providerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Message-ID", "X-Request-ID", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
