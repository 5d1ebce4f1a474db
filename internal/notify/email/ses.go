package email

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// SESProvider sends through AWS SES v2
type SESProvider struct {
	client *sesv2.Client
	region string
}

// NewSESProvider loads the default AWS credential chain for region. A
// config error leaves the provider unconfigured.
func NewSESProvider(ctx context.Context, region string) *SESProvider {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		zap.L().Warn("Email: failed to load AWS config, SES unavailable", zap.Error(err))
		return &SESProvider{region: region}
	}
	return &SESProvider{client: sesv2.NewFromConfig(cfg), region: region}
}

// Name returns the provider name
func (p *SESProvider) Name() string { return "ses" }

// IsConfigured reports whether the AWS client was built
func (p *SESProvider) IsConfigured() bool { return p.client != nil }

// Send sends one email
func (p *SESProvider) Send(ctx context.Context, req *Request) error {
	if p.client == nil {
		return fmt.Errorf("SES client not initialized")
	}

	var body types.Body
	if req.HTML != "" {
		body.Html = &types.Content{Data: &req.HTML}
	}
	if req.Body != "" {
		body.Text = &types.Content{Data: &req.Body}
	}

	result, err := p.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &req.From,
		Destination:      &types.Destination{ToAddresses: req.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &req.Subject},
				Body:    &body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES send failed: %w", err)
	}
	if result.MessageId != nil {
		zap.L().Debug("Email: sent via SES", zap.String("message_id", *result.MessageId), zap.Strings("to", req.To))
	}
	return nil
}
