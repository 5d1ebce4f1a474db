package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/alerts"
	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/config"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/fingerprint"
	"github.com/akmatori/responder/internal/locks"
	"github.com/akmatori/responder/internal/metrics"
)

// DedupService is the ingestion entry point. It collapses repeated arrivals
// of the same alert, applies silences to new alerts and hands new firing
// alerts to correlation.
type DedupService struct {
	db          *gorm.DB
	windows     config.Windows
	clock       clock.Clock
	locks       *locks.Keyed
	silences    *SilenceService
	correlation *CorrelationService
}

// IngestResult describes the outcome of one ingested alert
type IngestResult struct {
	Alert           *database.Alert
	IsNew           bool
	Suppressed      bool
	Resolved        bool
	SeverityChanged bool
	Incident        *database.Incident
}

// NewDedupService creates a new dedup service. A nil correlation service
// stores alerts without grouping them.
func NewDedupService(db *gorm.DB, windows config.Windows, clk clock.Clock, silences *SilenceService, correlation *CorrelationService) *DedupService {
	if clk == nil {
		clk = clock.Real{}
	}
	if silences == nil {
		silences = NewSilenceService(db)
	}
	return &DedupService{
		db:          db,
		windows:     windows,
		clock:       clk,
		locks:       locks.NewKeyed(),
		silences:    silences,
		correlation: correlation,
	}
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Ingest stores one normalized alert. A live alert with the same fingerprint
// seen within the dedup window absorbs the arrival; otherwise a new alert is
// created, as it is for a firing arrival after resolution. Check-and-increment is serialized per fingerprint.
func (s *DedupService) Ingest(ctx context.Context, in alerts.NormalizedAlert) (*IngestResult, error) {
	now := s.clock.Now()
	in = in.Sanitize(now)
	fp := fingerprint.Compute(in.Source, in.Name, in.Service, in.Host, in.Labels)

	unlock := s.locks.Lock("fingerprint:" + fp)
	defer unlock()

	// A firing arrival never reopens a resolved alert; it starts a new one.
	// A repeated resolution still folds into the alert it resolved.
	excluded := []database.AlertStatus{database.AlertStatusArchived, database.AlertStatusResolved}
	if in.IsResolved() {
		excluded = excluded[:1]
	}

	result := &IngestResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing database.Alert
		err := tx.Where("fingerprint = ? AND status NOT IN ? AND last_received_at >= ?",
			fp, excluded, now.Add(-s.windows.Dedup)).
			Order("last_received_at DESC, id DESC").
			First(&existing).Error
		switch {
		case err == nil:
			return s.merge(tx, &existing, in, now, result)
		case errors.Is(err, gorm.ErrRecordNotFound):
			return s.create(tx, fp, in, now, result)
		default:
			return err
		}
	})
	if err != nil {
		return nil, storeError("failed to ingest alert", err)
	}

	alert := result.Alert
	switch {
	case result.IsNew && result.Suppressed:
		metrics.AlertsIngested.WithLabelValues("suppressed").Inc()
	case result.IsNew:
		metrics.AlertsIngested.WithLabelValues("new").Inc()
	default:
		metrics.AlertsIngested.WithLabelValues("duplicate").Inc()
	}

	if s.correlation == nil {
		return result, nil
	}

	// A duplicate of a firing alert that never got an incident is the retry
	// of an ingest whose correlation step failed.
	if alert.Status == database.AlertStatusFiring && alert.IncidentID == nil {
		cr, err := s.correlation.Correlate(ctx, alert)
		if err != nil {
			return nil, storeError("failed to correlate alert", err)
		}
		result.Incident = cr.Incident
		return result, nil
	}

	if result.IsNew || alert.IncidentID == nil {
		return result, nil
	}

	if result.Resolved {
		inc, err := s.correlation.AlertResolved(ctx, alert.ID)
		if err != nil {
			return nil, storeError("failed to apply alert resolution", err)
		}
		result.Incident = inc
	} else if result.SeverityChanged {
		if _, err := s.correlation.RecomputeSeverity(ctx, *alert.IncidentID); err != nil {
			return nil, storeError("failed to recompute incident severity", err)
		}
	}

	if result.Incident == nil {
		var inc database.Incident
		if err := s.db.WithContext(ctx).First(&inc, *alert.IncidentID).Error; err != nil {
			return nil, storeError("failed to load incident", err)
		}
		result.Incident = &inc
	}
	return result, nil
}

func (s *DedupService) create(tx *gorm.DB, fp string, in alerts.NormalizedAlert, now time.Time, result *IngestResult) error {
	alert := database.Alert{
		Fingerprint:    fp,
		Source:         in.Source,
		Name:           in.Name,
		Description:    in.Description,
		Status:         database.AlertStatusFiring,
		Severity:       in.Severity,
		Service:        in.Service,
		Host:           in.Host,
		Environment:    in.Environment,
		Labels:         database.StringMap(in.Labels),
		Annotations:    database.StringMap(in.Annotations),
		Tags:           database.StringList{},
		GeneratorURL:   in.GeneratorURL,
		StartsAt:       *in.StartsAt,
		EndsAt:         in.EndsAt,
		LastReceivedAt: now,
		DuplicateCount: 1,
	}

	if in.IsResolved() {
		alert.Status = database.AlertStatusResolved
		alert.ResolvedAt = utcPtr(now)
		if alert.EndsAt == nil {
			alert.EndsAt = utcPtr(now)
		}
		result.Resolved = true
	} else {
		suppressed, window, err := s.silences.suppressedBy(tx, &alert, now)
		if err != nil {
			return err
		}
		if suppressed {
			alert.Status = database.AlertStatusSuppressed
			result.Suppressed = true
			zap.L().Info("Dedup: alert suppressed by silence",
				zap.String("fingerprint", fp),
				zap.String("silence", window.Name),
			)
		}
	}

	if err := tx.Create(&alert).Error; err != nil {
		return err
	}
	if err := tx.Create(&database.AlertOccurrence{AlertID: alert.ID, ReceivedAt: now}).Error; err != nil {
		return err
	}

	result.Alert = &alert
	result.IsNew = true
	return nil
}

func (s *DedupService) merge(tx *gorm.DB, alert *database.Alert, in alerts.NormalizedAlert, now time.Time, result *IngestResult) error {
	updates := map[string]interface{}{
		"duplicate_count":  gorm.Expr("duplicate_count + 1"),
		"last_received_at": now,
	}

	open := alert.Status != database.AlertStatusResolved
	if in.IsResolved() && open {
		endsAt := now
		if in.EndsAt != nil {
			endsAt = *in.EndsAt
		}
		updates["status"] = database.AlertStatusResolved
		updates["ends_at"] = endsAt
		updates["resolved_at"] = now
		result.Resolved = true
	} else if open && in.Severity != alert.Severity {
		updates["severity"] = in.Severity
		result.SeverityChanged = true
	}

	if err := tx.Model(alert).Updates(updates).Error; err != nil {
		return err
	}
	if err := tx.Create(&database.AlertOccurrence{AlertID: alert.ID, ReceivedAt: now}).Error; err != nil {
		return err
	}
	if err := tx.First(alert, alert.ID).Error; err != nil {
		return err
	}

	zap.L().Debug("Dedup: duplicate merged",
		zap.String("alert", alert.UUID),
		zap.Int("duplicate_count", alert.DuplicateCount),
	)
	result.Alert = alert
	return nil
}
