package senders

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/notify"
)

// TeamsSender posts an Adaptive Card to a Teams incoming webhook ("webhook_url")
type TeamsSender struct {
	client *resty.Client
}

// NewTeamsSender creates the sender
func NewTeamsSender() *TeamsSender {
	return &TeamsSender{client: newHTTPClient(defaultTimeout)}
}

// Type returns the channel type this sender handles
func (s *TeamsSender) Type() database.ChannelType { return database.ChannelTeams }

// Send delivers the message
func (s *TeamsSender) Send(ctx context.Context, msg *notify.Message, cfg database.JSONB) error {
	url := configString(cfg, "webhook_url")
	if url == "" {
		return fmt.Errorf("teams channel config needs webhook_url")
	}
	resp, err := s.client.R().SetContext(ctx).SetBody(BuildTeamsCard(msg)).Post(url)
	return checkResponse("teams webhook", resp, err)
}

// BuildTeamsCard renders the incident as an Adaptive Card 1.4 message
func BuildTeamsCard(msg *notify.Message) map[string]interface{} {
	inc := msg.Incident
	card := map[string]interface{}{
		"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
		"type":    "AdaptiveCard",
		"version": "1.4",
		"body": []interface{}{
			map[string]interface{}{
				"type":   "TextBlock",
				"size":   "Medium",
				"weight": "Bolder",
				"text":   msg.Label(),
			},
			map[string]interface{}{
				"type": "TextBlock",
				"text": inc.Title,
				"wrap": true,
			},
			map[string]interface{}{
				"type": "FactSet",
				"facts": []map[string]string{
					{"title": "Severity", "value": strings.ToUpper(string(inc.Severity))},
					{"title": "Status", "value": string(inc.Status)},
					{"title": "Services", "value": msg.ServiceText()},
					{"title": "Alerts", "value": fmt.Sprint(msg.AlertCount())},
				},
			},
		},
	}
	if url := msg.IncidentURL(); url != "" {
		card["actions"] = []map[string]string{
			{"type": "Action.OpenUrl", "title": "View Incident", "url": url},
		}
	}

	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content":     card,
			},
		},
	}
}
