package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendProvider sends through the Resend API
type ResendProvider struct {
	client *resend.Client
}

// NewResendProvider creates the provider; an empty key leaves it unconfigured
func NewResendProvider(apiKey string) *ResendProvider {
	if apiKey == "" {
		return &ResendProvider{}
	}
	return &ResendProvider{client: resend.NewClient(apiKey)}
}

// Name returns the provider name
func (p *ResendProvider) Name() string { return "resend" }

// IsConfigured reports whether an API key was given
func (p *ResendProvider) IsConfigured() bool { return p.client != nil }

// Send sends one email
func (p *ResendProvider) Send(ctx context.Context, req *Request) error {
	if p.client == nil {
		return fmt.Errorf("resend client not initialized")
	}

	params := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
	}
	if req.HTML != "" {
		params.Html = req.HTML
	} else {
		params.Text = req.Body
	}

	result, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	zap.L().Debug("Email: sent via resend", zap.String("email_id", result.Id), zap.Strings("to", req.To))
	return nil
}
