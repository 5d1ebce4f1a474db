package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/oncall"
)

// OnCallResult is who holds a schedule at an instant and when it hands off
type OnCallResult struct {
	Schedule    *database.OnCallSchedule
	User        *database.User
	Override    bool
	NextHandoff time.Time
}

// ScheduleService answers on-call lookups over stored schedules
type ScheduleService struct {
	db *gorm.DB
}

// NewScheduleService creates a new schedule service
func NewScheduleService(db *gorm.DB) *ScheduleService {
	return &ScheduleService{db: db}
}

// OnCall resolves the user on call for a schedule at the given instant. User
// is nil when the rotation is empty.
func (s *ScheduleService) OnCall(ctx context.Context, scheduleID uint, at time.Time) (*OnCallResult, error) {
	db := s.db.WithContext(ctx)

	var schedule database.OnCallSchedule
	err := db.Preload("Members").Preload("Overrides").First(&schedule, scheduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}

	result := &OnCallResult{
		Schedule:    &schedule,
		Override:    oncall.ActiveOverride(&schedule, at) != nil,
		NextHandoff: oncall.NextHandoff(&schedule, at),
	}

	userID, ok := oncall.CurrentOnCall(&schedule, at)
	if !ok {
		return result, nil
	}
	var user database.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	result.User = &user
	return result, nil
}
