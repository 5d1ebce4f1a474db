package senders

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/notify"
	"github.com/akmatori/responder/internal/services"
)

// PagerDutyEventsURL is the Events API v2 enqueue endpoint
const PagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

var pagerDutySeverity = map[database.Severity]string{
	database.SeverityCritical: "critical",
	database.SeverityHigh:     "error",
	database.SeverityWarning:  "warning",
	database.SeverityLow:      "info",
	database.SeverityInfo:     "info",
}

// PagerDutySender raises and resolves PagerDuty alerts keyed by incident.
// Channel config needs "routing_key".
type PagerDutySender struct {
	client    *resty.Client
	eventsURL string
}

// NewPagerDutySender creates the sender. An empty eventsURL uses PagerDutyEventsURL.
func NewPagerDutySender(eventsURL string) *PagerDutySender {
	if eventsURL == "" {
		eventsURL = PagerDutyEventsURL
	}
	return &PagerDutySender{client: newHTTPClient(defaultTimeout), eventsURL: eventsURL}
}

// Type returns the channel type this sender handles
func (s *PagerDutySender) Type() database.ChannelType { return database.ChannelPagerDuty }

// Send delivers the message
func (s *PagerDutySender) Send(ctx context.Context, msg *notify.Message, cfg database.JSONB) error {
	routingKey := configString(cfg, "routing_key")
	if routingKey == "" {
		return fmt.Errorf("pagerduty channel config needs routing_key")
	}
	resp, err := s.client.R().SetContext(ctx).SetBody(BuildPagerDutyEvent(msg, routingKey)).Post(s.eventsURL)
	return checkResponse("pagerduty", resp, err)
}

// BuildPagerDutyEvent renders an Events API v2 event. The incident UUID is
// the dedup key so later events update the same PagerDuty alert.
func BuildPagerDutyEvent(msg *notify.Message, routingKey string) map[string]interface{} {
	inc := msg.Incident
	action := "trigger"
	if msg.EventType == services.NotifyIncidentResolved {
		action = "resolve"
	}

	event := map[string]interface{}{
		"routing_key":  routingKey,
		"event_action": action,
		"dedup_key":    inc.UUID,
	}
	if action == "resolve" {
		return event
	}

	severity, ok := pagerDutySeverity[inc.Severity]
	if !ok {
		severity = "info"
	}
	event["payload"] = map[string]interface{}{
		"summary":   msg.Summary(),
		"source":    msg.ServiceText(),
		"severity":  severity,
		"component": inc.Service,
		"group":     msg.ServiceText(),
		"class":     msg.EventType,
		"custom_details": map[string]interface{}{
			"incident_id": inc.UUID,
			"status":      string(inc.Status),
			"alert_count": msg.AlertCount(),
			"started_at":  inc.StartedAt.UTC(),
		},
	}
	if url := msg.IncidentURL(); url != "" {
		event["links"] = []map[string]string{{"href": url, "text": "View incident"}}
	}
	return event
}
