package database

import "time"

// RotationType controls how often the on-call duty hands off
type RotationType string

const (
	RotationHourly RotationType = "hourly"
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationCustom RotationType = "custom"
)

// OnCallSchedule is a rotation of members with optional overrides
type OnCallSchedule struct {
	ID                    uint         `gorm:"primaryKey" json:"id"`
	Name                  string       `gorm:"size:255;uniqueIndex;not null" json:"name"`
	RotationType          RotationType `gorm:"size:20;not null" json:"rotation_type"`
	RotationIntervalHours int          `json:"rotation_interval_hours"`
	RotationIntervalDays  int          `json:"rotation_interval_days"`
	HandoffTime           string       `gorm:"size:5" json:"handoff_time"` // HH:MM in Timezone
	Timezone              string       `gorm:"size:64" json:"timezone"`
	EffectiveFrom         time.Time    `gorm:"not null" json:"effective_from"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`

	Members   []OnCallMember   `gorm:"foreignKey:ScheduleID" json:"members,omitempty"`
	Overrides []OnCallOverride `gorm:"foreignKey:ScheduleID" json:"overrides,omitempty"`
}

func (OnCallSchedule) TableName() string {
	return "oncall_schedules"
}

// OnCallMember is one position in a schedule's rotation
type OnCallMember struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	ScheduleID uint `gorm:"not null;index" json:"schedule_id"`
	UserID     uint `gorm:"not null" json:"user_id"`
	Order      int  `gorm:"column:position;not null" json:"order"`
}

func (OnCallMember) TableName() string {
	return "oncall_members"
}

// OnCallOverride replaces the rotation for [StartsAt, EndsAt)
type OnCallOverride struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ScheduleID uint      `gorm:"not null;index" json:"schedule_id"`
	UserID     uint      `gorm:"not null" json:"user_id"`
	StartsAt   time.Time `gorm:"not null" json:"starts_at"`
	EndsAt     time.Time `gorm:"not null" json:"ends_at"`
	Reason     string    `gorm:"type:text" json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OnCallOverride) TableName() string {
	return "oncall_overrides"
}
