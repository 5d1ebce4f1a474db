package senders

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/notify"
)

// ChannelPoster posts to a Slack channel through the bot
type ChannelPoster interface {
	IsConfigured() bool
	PostToChannel(ctx context.Context, nameOrID, text string, attachments ...slack.Attachment) error
}

// SlackSender posts to an incoming webhook ("webhook_url") or, with a bot
// configured, to a named channel ("channel").
type SlackSender struct {
	bot        ChannelPoster
	httpClient *http.Client
}

// NewSlackSender creates the sender. bot may be nil.
func NewSlackSender(bot ChannelPoster) *SlackSender {
	return &SlackSender{bot: bot, httpClient: &http.Client{Timeout: defaultTimeout}}
}

// Type returns the channel type this sender handles
func (s *SlackSender) Type() database.ChannelType { return database.ChannelSlack }

// Send delivers the message
func (s *SlackSender) Send(ctx context.Context, msg *notify.Message, cfg database.JSONB) error {
	attachment := BuildSlackAttachment(msg)

	if url := configString(cfg, "webhook_url"); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("invalid Slack webhook URL: must be an HTTP(S) URL")
		}
		err := slack.PostWebhookCustomHTTPContext(ctx, url, s.httpClient, &slack.WebhookMessage{
			Text:        msg.Summary(),
			Attachments: []slack.Attachment{attachment},
		})
		if err != nil {
			return fmt.Errorf("slack webhook failed: %w", err)
		}
		return nil
	}

	if channel := configString(cfg, "channel"); channel != "" {
		if s.bot == nil || !s.bot.IsConfigured() {
			return fmt.Errorf("slack channel %q configured but no bot token set", channel)
		}
		return s.bot.PostToChannel(ctx, channel, msg.Summary(), attachment)
	}

	return fmt.Errorf("slack channel config needs webhook_url or channel")
}

// BuildSlackAttachment renders the incident as a colored attachment with
// Block Kit sections
func BuildSlackAttachment(msg *notify.Message) slack.Attachment {
	inc := msg.Incident
	header := fmt.Sprintf("%s *%s*\n*%s*", database.GetSeverityEmoji(inc.Severity), msg.Label(), inc.Title)

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*Severity:*\n"+strings.ToUpper(string(inc.Severity)), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Status:*\n"+string(inc.Status), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Services:*\n"+msg.ServiceText(), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Alerts:*\n%d", msg.AlertCount()), false, false),
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, header, false, false), nil, nil),
		slack.NewSectionBlock(nil, fields, nil),
	}
	if url := msg.IncidentURL(); url != "" {
		link := slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("<%s|View incident>", url), false, false)
		blocks = append(blocks, slack.NewContextBlock("", link))
	}

	return slack.Attachment{
		Color:  notify.SeverityColor(inc.Severity),
		Blocks: slack.Blocks{BlockSet: blocks},
	}
}
