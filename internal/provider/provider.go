package provider

import "context"

// Provider is the outbound push delivery port. Each implementation is bound
// to a single configured destination.
type Provider interface {
	Send(ctx context.Context, text string) (*ProviderResponse, error)
}

// ProviderResponse stores push call metadata for logging.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
