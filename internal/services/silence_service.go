package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/database"
)

// SilenceService evaluates maintenance windows against alerts
type SilenceService struct {
	db *gorm.DB
}

// NewSilenceService creates a new silence service
func NewSilenceService(db *gorm.DB) *SilenceService {
	return &SilenceService{db: db}
}

// IsSuppressed reports whether any window active at now matches the alert.
// The first matching window is returned.
func (s *SilenceService) IsSuppressed(ctx context.Context, alert *database.Alert, now time.Time) (bool, *database.SilenceWindow, error) {
	return s.suppressedBy(s.db.WithContext(ctx), alert, now)
}

// suppressedBy runs the check on the given handle so it can join a transaction
func (s *SilenceService) suppressedBy(db *gorm.DB, alert *database.Alert, now time.Time) (bool, *database.SilenceWindow, error) {
	var windows []database.SilenceWindow
	err := db.Where("is_active = ? AND starts_at <= ? AND ends_at >= ?", true, now, now).
		Order("id ASC").
		Find(&windows).Error
	if err != nil {
		return false, nil, fmt.Errorf("failed to load silence windows: %w", err)
	}

	for i := range windows {
		if windows[i].CoversTime(now) && Matches(windows[i].Matchers, alert) {
			return true, &windows[i], nil
		}
	}
	return false, nil, nil
}

// Matches reports whether every present matcher accepts the alert.
// Absent matchers are wildcards.
func Matches(m database.SilenceMatchers, alert *database.Alert) bool {
	if len(m.Service) > 0 && !contains(m.Service, alert.Service) {
		return false
	}
	if len(m.Severity) > 0 && !contains(m.Severity, string(alert.Severity)) {
		return false
	}
	for k, v := range m.Labels {
		got, ok := alert.Labels[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
