package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/events"
	"github.com/akmatori/responder/internal/locks"
)

// IncidentService applies human acknowledge and resolve actions to incidents
// and their alerts, and serves incident reads.
type IncidentService struct {
	db          *gorm.DB
	clock       clock.Clock
	locks       *locks.Keyed
	correlation *CorrelationService
	escalation  *EscalationService
	notifier    Notifier
	runner      Runner
	publisher   events.Publisher
}

// NewIncidentService creates a new incident service. It shares the
// correlation service's per-service locks so manual and automatic
// resolution never interleave.
func NewIncidentService(db *gorm.DB, clk clock.Clock, correlation *CorrelationService, escalation *EscalationService,
	notifier Notifier, runner Runner, publisher events.Publisher) *IncidentService {
	if clk == nil {
		clk = clock.Real{}
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if runner == nil {
		runner = syncRunner{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	keyed := locks.NewKeyed()
	if correlation != nil {
		keyed = correlation.locks
	}
	return &IncidentService{
		db:          db,
		clock:       clk,
		locks:       keyed,
		correlation: correlation,
		escalation:  escalation,
		notifier:    notifier,
		runner:      runner,
		publisher:   publisher,
	}
}

// Get returns an incident with its alerts and timeline
func (s *IncidentService) Get(ctx context.Context, incidentUUID string) (*database.Incident, error) {
	var inc database.Incident
	err := s.db.WithContext(ctx).
		Preload("Alerts", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("uuid = ?", incidentUUID).
		First(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}
	return &inc, nil
}

// List returns incidents newest first, optionally filtered by status, with the total count
func (s *IncidentService) List(ctx context.Context, status string, offset, limit int) ([]database.Incident, int64, error) {
	query := s.db.WithContext(ctx).Model(&database.Incident{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	var incidents []database.Incident
	if err := query.Order("started_at DESC, id DESC").Offset(offset).Limit(limit).Find(&incidents).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, total, nil
}

// Acknowledge moves an open incident to acknowledged and stops its
// escalation in the same transaction. Acknowledging twice is a no-op;
// acknowledging a resolved incident is an invalid transition.
func (s *IncidentService) Acknowledge(ctx context.Context, incidentUUID, actor string) (*database.Incident, error) {
	if actor == "" {
		actor = systemActor
	}
	inc, err := s.lookup(ctx, incidentUUID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockIncident(inc)
	defer unlock()

	now := s.clock.Now()
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(inc, inc.ID).Error; err != nil {
			return err
		}
		switch inc.Status {
		case database.IncidentStatusResolved:
			return ErrInvalidTransition
		case database.IncidentStatusAcknowledged:
			return nil
		}

		err := tx.Model(inc).Updates(map[string]interface{}{
			"status":          database.IncidentStatusAcknowledged,
			"acknowledged_at": now,
			"acknowledged_by": actor,
		}).Error
		if err != nil {
			return err
		}
		err = tx.Model(&database.Alert{}).
			Where("incident_id = ? AND status = ?", inc.ID, database.AlertStatusFiring).
			Updates(map[string]interface{}{
				"status":          database.AlertStatusAcknowledged,
				"acknowledged_at": now,
			}).Error
		if err != nil {
			return err
		}
		if err := recordEvent(tx, inc.ID, database.EventAcknowledged, actor, fmt.Sprintf("Acknowledged by %s", actor), nil); err != nil {
			return err
		}
		if s.escalation != nil {
			if err := s.escalation.cancelTx(tx, inc.ID); err != nil {
				return err
			}
		}
		changed = true
		return tx.First(inc, inc.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to acknowledge incident: %w", err)
	}

	if changed {
		zap.L().Info("Incident: acknowledged", zap.String("incident", inc.UUID), zap.String("actor", actor))
		e := incidentEvent(events.IncidentAcknowledged, inc, now)
		e.Actor = actor
		s.publisher.Publish(ctx, e)
		fanout(s.runner, s.notifier, inc.ID, NotifyIncidentAcknowledged)
	}
	return inc, nil
}

// Resolve closes an incident and every unresolved member alert. Resolving a
// resolved incident is a no-op.
func (s *IncidentService) Resolve(ctx context.Context, incidentUUID, actor string) (*database.Incident, error) {
	if actor == "" {
		actor = systemActor
	}
	inc, err := s.lookup(ctx, incidentUUID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockIncident(inc)
	defer unlock()

	now := s.clock.Now()
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(inc, inc.ID).Error; err != nil {
			return err
		}
		if inc.Status == database.IncidentStatusResolved {
			return nil
		}

		err := tx.Model(inc).Updates(map[string]interface{}{
			"status":      database.IncidentStatusResolved,
			"resolved_at": now,
			"resolved_by": actor,
		}).Error
		if err != nil {
			return err
		}
		err = tx.Model(&database.Alert{}).
			Where("incident_id = ? AND status IN ?", inc.ID,
				[]database.AlertStatus{database.AlertStatusFiring, database.AlertStatusAcknowledged}).
			Updates(map[string]interface{}{
				"status":      database.AlertStatusResolved,
				"resolved_at": now,
			}).Error
		if err != nil {
			return err
		}
		if err := recordEvent(tx, inc.ID, database.EventResolved, actor, fmt.Sprintf("Resolved by %s", actor), nil); err != nil {
			return err
		}
		if s.escalation != nil {
			if err := s.escalation.cancelTx(tx, inc.ID); err != nil {
				return err
			}
		}
		changed = true
		return tx.First(inc, inc.ID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve incident: %w", err)
	}

	if changed {
		zap.L().Info("Incident: resolved", zap.String("incident", inc.UUID), zap.String("actor", actor))
		e := incidentEvent(events.IncidentResolved, inc, now)
		e.Actor = actor
		s.publisher.Publish(ctx, e)
		fanout(s.runner, s.notifier, inc.ID, NotifyIncidentResolved)
	}
	return inc, nil
}

// AcknowledgeAlert marks a firing alert acknowledged. The incident is untouched.
func (s *IncidentService) AcknowledgeAlert(ctx context.Context, alertUUID, actor string) (*database.Alert, error) {
	alert, err := s.lookupAlert(ctx, alertUUID)
	if err != nil {
		return nil, err
	}
	switch alert.Status {
	case database.AlertStatusAcknowledged:
		return alert, nil
	case database.AlertStatusFiring:
	default:
		return nil, ErrInvalidTransition
	}

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(alert).
		Where("status = ?", database.AlertStatusFiring).
		Updates(map[string]interface{}{
			"status":          database.AlertStatusAcknowledged,
			"acknowledged_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", res.Error)
	}
	zap.L().Info("Incident: alert acknowledged", zap.String("alert", alert.UUID), zap.String("actor", actor))
	return s.lookupAlert(ctx, alertUUID)
}

// ResolveAlert resolves one alert and auto-resolves its incident when it was
// the last unresolved member.
func (s *IncidentService) ResolveAlert(ctx context.Context, alertUUID, actor string) (*database.Alert, error) {
	alert, err := s.lookupAlert(ctx, alertUUID)
	if err != nil {
		return nil, err
	}
	if alert.Status == database.AlertStatusResolved {
		return alert, nil
	}
	if alert.Status == database.AlertStatusArchived {
		return nil, ErrInvalidTransition
	}

	now := s.clock.Now()
	updates := map[string]interface{}{
		"status":      database.AlertStatusResolved,
		"resolved_at": now,
	}
	if alert.EndsAt == nil {
		updates["ends_at"] = now
	}
	if err := s.db.WithContext(ctx).Model(alert).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}
	zap.L().Info("Incident: alert resolved", zap.String("alert", alert.UUID), zap.String("actor", actor))

	if s.correlation != nil && alert.IncidentID != nil {
		if _, err := s.correlation.AlertResolved(ctx, alert.ID); err != nil {
			return nil, err
		}
	}
	return s.lookupAlert(ctx, alertUUID)
}

func (s *IncidentService) lookup(ctx context.Context, incidentUUID string) (*database.Incident, error) {
	var inc database.Incident
	err := s.db.WithContext(ctx).Where("uuid = ?", incidentUUID).First(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}
	return &inc, nil
}

func (s *IncidentService) lookupAlert(ctx context.Context, alertUUID string) (*database.Alert, error) {
	var alert database.Alert
	err := s.db.WithContext(ctx).Where("uuid = ?", alertUUID).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	return &alert, nil
}

func (s *IncidentService) lockIncident(inc *database.Incident) func() {
	if inc.Service == "" {
		return func() {}
	}
	return s.locks.Lock(serviceKey(inc.Service))
}
