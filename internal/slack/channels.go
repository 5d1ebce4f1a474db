package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const conversationsPageSize = 500

// ChannelResolver maps channel names from notification channel configs to
// Slack channel IDs. Resolved names are cached for the client's lifetime.
type ChannelResolver struct {
	client *slack.Client
	mu     sync.RWMutex
	cache  map[string]string
}

// NewChannelResolver creates a resolver over a bot client
func NewChannelResolver(client *slack.Client) *ChannelResolver {
	return &ChannelResolver{
		client: client,
		cache:  make(map[string]string),
	}
}

// ResolveChannel turns "#alerts", "alerts" or a channel ID into a channel ID
func (r *ChannelResolver) ResolveChannel(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("slack channel is empty")
	}
	if isChannelID(nameOrID) {
		return nameOrID, nil
	}
	name := strings.TrimPrefix(nameOrID, "#")

	r.mu.RLock()
	id, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.lookup(ctx, name)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()

	zap.L().Debug("SlackManager: resolved channel", zap.String("name", name), zap.String("id", id))
	return id, nil
}

// lookup pages through every channel the bot can see
func (r *ChannelResolver) lookup(ctx context.Context, name string) (string, error) {
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           conversationsPageSize,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := r.client.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("failed to list slack channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if cursor == "" {
			return "", fmt.Errorf("slack channel %q not found", name)
		}
		params.Cursor = cursor
	}
}

// isChannelID reports whether s looks like a public (C) or private (G)
// channel ID: the prefix followed by 8 to 14 upper-case alphanumerics
func isChannelID(s string) bool {
	if len(s) < 9 || len(s) > 15 {
		return false
	}
	if s[0] != 'C' && s[0] != 'G' {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
