package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/config"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/events"
	"github.com/akmatori/responder/internal/locks"
	"github.com/akmatori/responder/internal/metrics"
)

// CorrelationService groups firing alerts into incidents by service and
// owns incident severity and auto-resolution.
type CorrelationService struct {
	db         *gorm.DB
	windows    config.Windows
	clock      clock.Clock
	locks      *locks.Keyed
	escalation *EscalationService
	notifier   Notifier
	runner     Runner
	publisher  events.Publisher
}

// CorrelationResult describes what Correlate did with an alert
type CorrelationResult struct {
	Incident       *database.Incident
	Created        bool
	SeverityRaised bool
}

// NewCorrelationService creates a new correlation service. Nil collaborators
// fall back to no-ops and a synchronous runner.
func NewCorrelationService(db *gorm.DB, windows config.Windows, clk clock.Clock, escalation *EscalationService,
	notifier Notifier, runner Runner, publisher events.Publisher) *CorrelationService {
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
	return &CorrelationService{
		db:         db,
		windows:    windows,
		clock:      clk,
		locks:      locks.NewKeyed(),
		escalation: escalation,
		notifier:   notifier,
		runner:     runner,
		publisher:  publisher,
	}
}

func serviceKey(service string) string {
	return "service:" + service
}

// Correlate attaches a firing alert to the newest open incident of the same
// service active within the correlation window, or opens a new one.
// Lookup and create are serialized per service.
func (c *CorrelationService) Correlate(ctx context.Context, alert *database.Alert) (*CorrelationResult, error) {
	if alert.Service != "" {
		unlock := c.locks.Lock(serviceKey(alert.Service))
		defer unlock()
	}

	now := c.clock.Now()
	result := &CorrelationResult{}
	var previous database.Severity

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inc database.Incident
		found := false
		if alert.Service != "" {
			err := tx.Where("service = ? AND status IN ? AND last_alert_at >= ?",
				alert.Service, database.OpenIncidentStatuses, now.Add(-c.windows.Correlation)).
				Order("last_alert_at DESC, id DESC").
				First(&inc).Error
			switch {
			case err == nil:
				found = true
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		if found {
			previous = inc.Severity
			return c.attach(tx, &inc, alert, now, result)
		}
		return c.open(tx, alert, now, result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to correlate alert %s: %w", alert.UUID, err)
	}

	inc := result.Incident
	if result.Created {
		metrics.IncidentsCreated.Inc()
		zap.L().Info("Correlation: incident created",
			zap.String("incident", inc.UUID),
			zap.String("service", inc.Service),
			zap.String("severity", string(inc.Severity)),
		)
		c.publisher.Publish(ctx, incidentEvent(events.IncidentCreated, inc, now))

		incidentID := inc.ID
		// The pending state committed with the incident; if this task is
		// dropped the scanner starts it instead.
		if c.escalation != nil {
			c.runner.Submit("escalation:start", func(ctx context.Context) {
				if _, err := c.escalation.Start(ctx, incidentID); err != nil {
					zap.L().Error("Correlation: failed to start escalation", zap.Uint("incident_id", incidentID), zap.Error(err))
				}
			})
		}
		fanout(c.runner, c.notifier, incidentID, NotifyIncidentCreated)
		return result, nil
	}

	zap.L().Debug("Correlation: alert attached", zap.String("incident", inc.UUID), zap.String("alert", alert.UUID))
	e := incidentEvent(events.AlertAdded, inc, now)
	e.AlertID = alert.UUID
	c.publisher.Publish(ctx, e)
	if result.SeverityRaised {
		zap.L().Info("Correlation: incident severity raised",
			zap.String("incident", inc.UUID),
			zap.String("from", string(previous)),
			zap.String("to", string(inc.Severity)),
		)
		c.publisher.Publish(ctx, incidentEvent(events.SeverityChanged, inc, now))
		fanout(c.runner, c.notifier, inc.ID, NotifySeverityChanged)
	}
	return result, nil
}

func (c *CorrelationService) open(tx *gorm.DB, alert *database.Alert, now time.Time, result *CorrelationResult) error {
	inc := database.Incident{
		Title:       incidentTitle(alert),
		Service:     alert.Service,
		Status:      database.IncidentStatusOpen,
		Severity:    alert.Severity,
		AlertCount:  1,
		StartedAt:   alert.StartsAt,
		LastAlertAt: now,
	}
	if err := tx.Create(&inc).Error; err != nil {
		return err
	}
	if err := tx.Model(&database.Alert{}).Where("id = ?", alert.ID).Update("incident_id", inc.ID).Error; err != nil {
		return err
	}
	alert.IncidentID = &inc.ID

	if c.escalation != nil {
		if _, err := c.escalation.prepareTx(tx, &inc, now); err != nil {
			return err
		}
	}

	if err := recordEvent(tx, inc.ID, database.EventCreated, "", fmt.Sprintf("Incident opened by %s", alert.Name),
		database.JSONB{"alert_id": alert.UUID}); err != nil {
		return err
	}
	result.Incident = &inc
	result.Created = true
	return nil
}

func (c *CorrelationService) attach(tx *gorm.DB, inc *database.Incident, alert *database.Alert, now time.Time, result *CorrelationResult) error {
	if err := tx.Model(&database.Alert{}).Where("id = ?", alert.ID).Update("incident_id", inc.ID).Error; err != nil {
		return err
	}
	alert.IncidentID = &inc.ID

	severity, err := maxMemberSeverity(tx, inc.ID)
	if err != nil {
		return err
	}
	startedAt := inc.StartedAt
	if alert.StartsAt.Before(startedAt) {
		startedAt = alert.StartsAt
	}

	err = tx.Model(inc).Updates(map[string]interface{}{
		"alert_count":   gorm.Expr("alert_count + 1"),
		"last_alert_at": now,
		"started_at":    startedAt,
		"severity":      severity,
	}).Error
	if err != nil {
		return err
	}

	if err := recordEvent(tx, inc.ID, database.EventAlertAdded, "", fmt.Sprintf("Alert %s added", alert.Name),
		database.JSONB{"alert_id": alert.UUID, "severity": string(alert.Severity)}); err != nil {
		return err
	}

	raised := severity.Rank() > inc.Severity.Rank()
	if raised {
		if err := recordEvent(tx, inc.ID, database.EventSeverityChanged, "",
			fmt.Sprintf("Severity raised from %s to %s", inc.Severity, severity),
			database.JSONB{"from": string(inc.Severity), "to": string(severity)}); err != nil {
			return err
		}
	}

	if err := tx.First(inc, inc.ID).Error; err != nil {
		return err
	}
	result.Incident = inc
	result.SeverityRaised = raised
	return nil
}

// AlertResolved auto-resolves the alert's incident once every member alert
// is resolved. A resolved incident is never reopened. It returns the incident
// when this call resolved it.
func (c *CorrelationService) AlertResolved(ctx context.Context, alertID uint) (*database.Incident, error) {
	db := c.db.WithContext(ctx)

	var alert database.Alert
	if err := db.First(&alert, alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	if alert.IncidentID == nil {
		return nil, nil
	}

	var inc database.Incident
	if err := db.First(&inc, *alert.IncidentID).Error; err != nil {
		return nil, err
	}
	if !inc.IsOpen() {
		return nil, nil
	}
	if inc.Service != "" {
		unlock := c.locks.Lock(serviceKey(inc.Service))
		defer unlock()
	}

	now := c.clock.Now()
	resolved := false
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&inc, inc.ID).Error; err != nil {
			return err
		}
		if !inc.IsOpen() {
			return nil
		}

		var remaining int64
		if err := tx.Model(&database.Alert{}).
			Where("incident_id = ? AND status <> ?", inc.ID, database.AlertStatusResolved).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		err := tx.Model(&inc).Updates(map[string]interface{}{
			"status":      database.IncidentStatusResolved,
			"resolved_at": now,
			"resolved_by": systemActor,
		}).Error
		if err != nil {
			return err
		}
		if err := recordEvent(tx, inc.ID, database.EventAutoResolved, "", "All alerts resolved", nil); err != nil {
			return err
		}
		if c.escalation != nil {
			if err := c.escalation.cancelTx(tx, inc.ID); err != nil {
				return err
			}
		}
		resolved = true
		return tx.First(&inc, inc.ID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to auto-resolve incident: %w", err)
	}
	if !resolved {
		return nil, nil
	}

	zap.L().Info("Correlation: incident auto-resolved", zap.String("incident", inc.UUID))
	c.publisher.Publish(ctx, incidentEvent(events.IncidentResolved, &inc, now))
	fanout(c.runner, c.notifier, inc.ID, NotifyIncidentResolved)
	return &inc, nil
}

// RecomputeSeverity resets an open incident's severity to the max of its
// members after a member severity changed. A rise is recorded and notified;
// a drop is applied silently. It reports whether the severity rose.
func (c *CorrelationService) RecomputeSeverity(ctx context.Context, incidentID uint) (bool, error) {
	db := c.db.WithContext(ctx)

	var inc database.Incident
	if err := db.First(&inc, incidentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrIncidentNotFound
		}
		return false, err
	}
	if inc.Service != "" {
		unlock := c.locks.Lock(serviceKey(inc.Service))
		defer unlock()
	}

	now := c.clock.Now()
	raised := false
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&inc, incidentID).Error; err != nil {
			return err
		}
		if !inc.IsOpen() {
			return nil
		}
		severity, err := maxMemberSeverity(tx, inc.ID)
		if err != nil {
			return err
		}
		if severity == inc.Severity || severity == "" {
			return nil
		}

		previous := inc.Severity
		if err := tx.Model(&inc).Update("severity", severity).Error; err != nil {
			return err
		}
		if severity.Rank() > previous.Rank() {
			raised = true
			return recordEvent(tx, inc.ID, database.EventSeverityChanged, "",
				fmt.Sprintf("Severity raised from %s to %s", previous, severity),
				database.JSONB{"from": string(previous), "to": string(severity)})
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to recompute severity: %w", err)
	}

	if raised {
		zap.L().Info("Correlation: incident severity raised", zap.String("incident", inc.UUID), zap.String("to", string(inc.Severity)))
		c.publisher.Publish(ctx, incidentEvent(events.SeverityChanged, &inc, now))
		fanout(c.runner, c.notifier, inc.ID, NotifySeverityChanged)
	}
	return raised, nil
}

func incidentTitle(alert *database.Alert) string {
	if alert.Service == "" {
		return alert.Name
	}
	return fmt.Sprintf("%s: %s", alert.Service, alert.Name)
}
