package slack

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Manager holds the bot client used for direct pages and channel posts.
// The token can be swapped at runtime.
type Manager struct {
	mu       sync.RWMutex
	client   *slack.Client
	resolver *ChannelResolver
	options  []slack.Option
}

// Option configures a Manager
type Option func(*Manager)

// WithAPIURL points the client at another Slack API base URL
func WithAPIURL(url string) Option {
	return func(m *Manager) { m.options = append(m.options, slack.OptionAPIURL(url)) }
}

// WithHTTPClient sets the HTTP client used for Slack API calls
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.options = append(m.options, slack.OptionHTTPClient(c)) }
}

// NewManager creates a manager. An empty token leaves Slack disabled.
func NewManager(botToken string, opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	m.Reload(botToken)
	return m
}

// Reload replaces the bot token; empty disables the client
func (m *Manager) Reload(botToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if botToken == "" {
		m.client = nil
		m.resolver = nil
		zap.L().Info("SlackManager: bot token not set, Slack DMs disabled")
		return
	}
	m.client = slack.New(botToken, m.options...)
	m.resolver = NewChannelResolver(m.client)
	zap.L().Info("SlackManager: Slack bot client is ACTIVE")
}

// GetClient returns the current Slack client (nil if not configured)
func (m *Manager) GetClient() *slack.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// IsConfigured reports whether a bot token is set
func (m *Manager) IsConfigured() bool {
	return m.GetClient() != nil
}

// DirectMessage opens a DM with a user and posts the message there
func (m *Manager) DirectMessage(ctx context.Context, userID, text string, blocks ...slack.Block) error {
	client := m.GetClient()
	if client == nil {
		return fmt.Errorf("slack bot not configured")
	}

	channel, _, _, err := client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{userID},
		ReturnIM: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	return m.post(ctx, client, channel.ID, text, blocks, nil)
}

// PostToChannel posts to a channel given by name or ID
func (m *Manager) PostToChannel(ctx context.Context, nameOrID, text string, attachments ...slack.Attachment) error {
	m.mu.RLock()
	client, resolver := m.client, m.resolver
	m.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("slack bot not configured")
	}

	channelID, err := resolver.ResolveChannel(ctx, nameOrID)
	if err != nil {
		return err
	}
	return m.post(ctx, client, channelID, text, nil, attachments)
}

func (m *Manager) post(ctx context.Context, client *slack.Client, channelID, text string, blocks []slack.Block, attachments []slack.Attachment) error {
	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		options = append(options, slack.MsgOptionBlocks(blocks...))
	}
	if len(attachments) > 0 {
		options = append(options, slack.MsgOptionAttachments(attachments...))
	}
	if _, _, err := client.PostMessageContext(ctx, channelID, options...); err != nil {
		return fmt.Errorf("failed to post to %s: %w", channelID, err)
	}
	return nil
}
