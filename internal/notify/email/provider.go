// Package email sends mail through a primary provider with ordered fallbacks.
package email

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Request is one email to send
type Request struct {
	From    string
	To      []string
	Subject string
	Body    string // plain text
	HTML    string // optional
}

// Provider is one email backend
type Provider interface {
	Name() string
	Send(ctx context.Context, req *Request) error
	IsConfigured() bool
}

// Registry holds the providers and chooses the primary with fallbacks
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	primary     string
	fallback    []string
	defaultFrom string
}

// NewRegistry creates an empty registry. defaultFrom fills requests without a sender.
func NewRegistry(defaultFrom string) *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		defaultFrom: defaultFrom,
	}
}

// Register adds a provider
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	zap.L().Info("Email: provider registered", zap.String("name", p.Name()), zap.Bool("configured", p.IsConfigured()))
}

// SetPrimary selects the provider tried first
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.primary = name
	return nil
}

// SetFallback sets the providers tried, in order, when the primary fails
func (r *Registry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("provider %q not registered", name)
		}
	}
	r.fallback = names
	return nil
}

// Primary returns the primary provider when configured, else the first
// configured fallback.
func (r *Registry) Primary() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[r.primary]; ok && p.IsConfigured() {
		return p, nil
	}
	for _, name := range r.fallback {
		if p, ok := r.providers[name]; ok && p.IsConfigured() {
			zap.L().Warn("Email: primary provider not configured, using fallback",
				zap.String("primary", r.primary), zap.String("fallback", name))
			return p, nil
		}
	}
	return nil, fmt.Errorf("no configured email provider available")
}

// Send delivers through the primary provider, then each fallback on failure.
// The primary's error is returned when every provider fails.
func (r *Registry) Send(ctx context.Context, req *Request) error {
	if len(req.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	if req.From == "" {
		req.From = r.defaultFrom
	}

	provider, err := r.Primary()
	if err != nil {
		return err
	}
	err = provider.Send(ctx, req)
	if err == nil {
		return nil
	}

	r.mu.RLock()
	fallbacks := r.fallback
	r.mu.RUnlock()
	for _, name := range fallbacks {
		r.mu.RLock()
		p, ok := r.providers[name]
		r.mu.RUnlock()
		if !ok || !p.IsConfigured() || p.Name() == provider.Name() {
			continue
		}
		zap.L().Warn("Email: provider failed, trying fallback",
			zap.String("provider", provider.Name()), zap.String("fallback", name), zap.Error(err))
		if p.Send(ctx, req) == nil {
			return nil
		}
	}
	return err
}
