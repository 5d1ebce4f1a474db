package notify

import (
	"context"
	"sync"

	"github.com/akmatori/responder/internal/database"
)

// Sender delivers a message to one channel type. config is the channel's
// type-specific configuration.
type Sender interface {
	Type() database.ChannelType
	Send(ctx context.Context, msg *Message, config database.JSONB) error
}

// Registry maps channel types to senders
type Registry struct {
	mu      sync.RWMutex
	senders map[database.ChannelType]Sender
}

// NewRegistry creates a registry holding the given senders
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[database.ChannelType]Sender)}
	for _, s := range senders {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the sender for its type
func (r *Registry) Register(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.Type()] = s
}

// Get returns the sender for a channel type
func (r *Registry) Get(t database.ChannelType) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[t]
	return s, ok
}
