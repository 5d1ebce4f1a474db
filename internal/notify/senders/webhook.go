package senders

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/notify"
)

const (
	secretHeader         = "X-Responder-Secret"
	maxWebhookAlerts     = 20
	webhookPayloadSource = "responder"
)

// WebhookSender posts a JSON payload to an arbitrary URL ("url") with
// optional custom "headers" and a shared "secret".
type WebhookSender struct {
	client *resty.Client
}

// NewWebhookSender creates the sender
func NewWebhookSender() *WebhookSender {
	return &WebhookSender{client: newHTTPClient(defaultTimeout)}
}

// Type returns the channel type this sender handles
func (s *WebhookSender) Type() database.ChannelType { return database.ChannelWebhook }

// WebhookPayload is the body of a generic webhook notification
type WebhookPayload struct {
	EventType    string          `json:"event_type"`
	Timestamp    time.Time       `json:"timestamp"`
	Source       string          `json:"source"`
	DashboardURL string          `json:"dashboard_url,omitempty"`
	Incident     WebhookIncident `json:"incident"`
}

// WebhookIncident is the incident section of a webhook payload
type WebhookIncident struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Status     string         `json:"status"`
	Severity   string         `json:"severity"`
	Services   []string       `json:"services"`
	AlertCount int            `json:"alert_count"`
	StartedAt  time.Time      `json:"started_at"`
	URL        string         `json:"url,omitempty"`
	Alerts     []WebhookAlert `json:"alerts"`
}

// WebhookAlert is one member alert in a webhook payload
type WebhookAlert struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Service  string `json:"service,omitempty"`
	Host     string `json:"host,omitempty"`
}

// Send delivers the message
func (s *WebhookSender) Send(ctx context.Context, msg *notify.Message, cfg database.JSONB) error {
	url := configString(cfg, "url")
	if url == "" {
		return fmt.Errorf("webhook channel config needs url")
	}

	req := s.client.R().SetContext(ctx).SetBody(BuildWebhookPayload(msg))
	for k, v := range configMap(cfg, "headers") {
		req.SetHeader(k, v)
	}
	if secret := configString(cfg, "secret"); secret != "" {
		req.SetHeader(secretHeader, secret)
	}

	resp, err := req.Post(url)
	return checkResponse("webhook", resp, err)
}

// BuildWebhookPayload renders the payload, carrying at most 20 member alerts
func BuildWebhookPayload(msg *notify.Message) WebhookPayload {
	inc := msg.Incident
	alerts := make([]WebhookAlert, 0, len(inc.Alerts))
	for i, a := range inc.Alerts {
		if i == maxWebhookAlerts {
			break
		}
		alerts = append(alerts, WebhookAlert{
			ID:       a.UUID,
			Name:     a.Name,
			Severity: string(a.Severity),
			Status:   string(a.Status),
			Service:  a.Service,
			Host:     a.Host,
		})
	}

	services := msg.Services()
	if services == nil {
		services = []string{}
	}

	return WebhookPayload{
		EventType:    msg.EventType,
		Timestamp:    msg.At.UTC(),
		Source:       webhookPayloadSource,
		DashboardURL: msg.DashboardURL,
		Incident: WebhookIncident{
			ID:         inc.UUID,
			Title:      inc.Title,
			Status:     string(inc.Status),
			Severity:   string(inc.Severity),
			Services:   services,
			AlertCount: msg.AlertCount(),
			StartedAt:  inc.StartedAt.UTC(),
			URL:        msg.IncidentURL(),
			Alerts:     alerts,
		},
	}
}
