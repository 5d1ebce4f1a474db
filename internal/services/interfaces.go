package services

import (
	"context"

	"github.com/akmatori/responder/internal/database"
)

// Notification event types handed to the Notifier
const (
	NotifyIncidentCreated      = "incident_created"
	NotifySeverityChanged      = "severity_changed"
	NotifyIncidentAcknowledged = "incident_acknowledged"
	NotifyIncidentResolved     = "incident_resolved"
)

// Notifier fans an incident event out to the eligible notification channels.
// Delivery failures are handled inside; nothing is returned to the caller.
type Notifier interface {
	Dispatch(ctx context.Context, incidentID uint, eventType string)
}

// Pager delivers an escalation page to one user
type Pager interface {
	Page(ctx context.Context, user *database.User, incident *database.Incident, level int) error
}

// Runner executes work off the request path. Submit must not block.
type Runner interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

// NoopNotifier discards every dispatch
type NoopNotifier struct{}

// Dispatch does nothing
func (NoopNotifier) Dispatch(ctx context.Context, incidentID uint, eventType string) {}

// syncRunner runs tasks on the caller's goroutine
type syncRunner struct{}

func (syncRunner) Submit(name string, fn func(ctx context.Context)) bool {
	fn(context.Background())
	return true
}
