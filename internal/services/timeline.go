package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/events"
)

const systemActor = "system"

// recordEvent appends an audit entry to the incident timeline
func recordEvent(tx *gorm.DB, incidentID uint, eventType, actor, description string, data database.JSONB) error {
	if actor == "" {
		actor = systemActor
	}
	return tx.Create(&database.IncidentEvent{
		IncidentID:  incidentID,
		EventType:   eventType,
		Description: description,
		Actor:       actor,
		Data:        data,
	}).Error
}

// maxMemberSeverity computes the incident severity from its member alerts
func maxMemberSeverity(tx *gorm.DB, incidentID uint) (database.Severity, error) {
	var severities []database.Severity
	if err := tx.Model(&database.Alert{}).Where("incident_id = ?", incidentID).Pluck("severity", &severities).Error; err != nil {
		return "", err
	}
	var max database.Severity
	for _, s := range severities {
		max = database.MaxSeverity(max, s)
	}
	return max, nil
}

func incidentEvent(eventType string, inc *database.Incident, at time.Time) events.Event {
	return events.Event{
		Type:       eventType,
		IncidentID: inc.UUID,
		Service:    inc.Service,
		Status:     string(inc.Status),
		Severity:   string(inc.Severity),
		At:         at,
	}
}

// fanout hands notification dispatch to the runner so callers never wait on delivery
func fanout(runner Runner, notifier Notifier, incidentID uint, eventType string) {
	runner.Submit("notify:"+eventType, func(ctx context.Context) {
		notifier.Dispatch(ctx, incidentID, eventType)
	})
}

func utcPtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
