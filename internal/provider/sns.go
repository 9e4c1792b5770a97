package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/kursadbilgin/notification-worker/internal/domain"
)

// SNSPublisher is the subset of the SNS client used for delivery.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSProvider publishes rendered text to an SNS topic or phone number.
// Destinations starting with "arn:" are treated as topic ARNs.
type SNSProvider struct {
	client      SNSPublisher
	destination string
}

// NewSNSProvider builds a client from the default AWS credential chain. SDK
// retries are disabled; the job store owns retry scheduling.
func NewSNSProvider(ctx context.Context, region, destination string) (*SNSProvider, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return nil, fmt.Errorf("%w: aws region is required", domain.ErrConfiguration)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", domain.ErrConfiguration, err)
	}

	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewSNSProviderWithClient(client, destination)
}

func NewSNSProviderWithClient(client SNSPublisher, destination string) (*SNSProvider, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: push destination is required", domain.ErrConfiguration)
	}
	if client == nil {
		return nil, fmt.Errorf("sns client is required")
	}

	return &SNSProvider{client: client, destination: destination}, nil
}

func (p *SNSProvider) Send(ctx context.Context, text string) (*ProviderResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("%w: provider is not initialized", domain.ErrConfiguration)
	}

	input := &sns.PublishInput{Message: aws.String(text)}
	if strings.HasPrefix(p.destination, "arn:") {
		input.TopicArn = aws.String(p.destination)
	} else {
		input.PhoneNumber = aws.String(p.destination)
	}

	out, err := p.client.Publish(ctx, input)
	if err != nil {
		return nil, classifySNSError(err)
	}

	resp := &ProviderResponse{StatusCode: 200}
	if out != nil {
		resp.MessageID = aws.ToString(out.MessageId)
	}
	return resp, nil
}

// httpStatusError is satisfied by AWS SDK response errors.
type httpStatusError interface {
	HTTPStatusCode() int
}

func classifySNSError(err error) error {
	var statusErr httpStatusError
	if errors.As(err, &statusErr) && statusErr.HTTPStatusCode() > 0 {
		code := statusErr.HTTPStatusCode()
		return &ProviderError{
			StatusCode: code,
			Message:    "sns publish failed",
			Transient:  isTransientHTTPStatus(code),
			Cause:      err,
		}
	}
	return transportError(err)
}
