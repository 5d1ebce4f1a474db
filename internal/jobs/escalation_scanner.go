package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/responder/internal/database"
)

const defaultScanBatch = 100

// EscalationFirer is the part of the escalation service the scanner drives
type EscalationFirer interface {
	DueStates(ctx context.Context, limit int) ([]database.EscalationState, error)
	Fire(ctx context.Context, stateID uint, level, version int) (bool, error)
}

// EscalationScanner fires escalation timers whose due time has passed.
// Timers are rows, so a restarted process picks up overdue states on its
// first scan, including pending starts whose async task never ran.
type EscalationScanner struct {
	escalation EscalationFirer
	batch      int
}

// NewEscalationScanner creates a new escalation scanner
func NewEscalationScanner(escalation EscalationFirer, batch int) *EscalationScanner {
	if batch <= 0 {
		batch = defaultScanBatch
	}
	return &EscalationScanner{escalation: escalation, batch: batch}
}

// ScanDue fires every due escalation state and returns how many advanced.
// A failing state is logged and the scan moves on.
func (s *EscalationScanner) ScanDue(ctx context.Context) (int, error) {
	states, err := s.escalation.DueStates(ctx, s.batch)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, state := range states {
		ok, err := s.escalation.Fire(ctx, state.ID, state.CurrentLevel, state.Version)
		if err != nil {
			zap.L().Error("Escalation scanner: fire failed",
				zap.Uint("state_id", state.ID),
				zap.Uint("incident_id", state.IncidentID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			fired++
		}
	}
	return fired, nil
}

// Start scans on every tick until stop is closed
func (s *EscalationScanner) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fired, err := s.ScanDue(context.Background())
			if err != nil {
				zap.L().Error("Escalation scanner error", zap.Error(err))
			} else if fired > 0 {
				zap.L().Info("Escalation scanner: fired escalations", zap.Int("count", fired))
			}
		case <-stop:
			zap.L().Info("Escalation scanner stopped")
			return
		}
	}
}
