package database

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Escalation target types
const (
	TargetTypeUser     = "user"
	TargetTypeSchedule = "schedule"
)

// EscalationTarget is either a direct user or an on-call schedule
type EscalationTarget struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}

// EscalationLevel is one step of a policy
type EscalationLevel struct {
	Level          int                `json:"level"`
	TimeoutMinutes int                `json:"timeout_minutes"`
	Targets        []EscalationTarget `json:"targets"`
}

// Timeout returns the level timeout clamped to [1, 1440] minutes
func (l EscalationLevel) Timeout() time.Duration {
	m := l.TimeoutMinutes
	if m < 1 {
		m = 1
	}
	if m > 1440 {
		m = 1440
	}
	return time.Duration(m) * time.Minute
}

// EscalationLevels is the ordered level list stored as JSON
type EscalationLevels []EscalationLevel

// Scan implements the sql.Scanner interface
func (l *EscalationLevels) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	return scanJSON(value, l)
}

// Value implements the driver.Valuer interface
func (l EscalationLevels) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// EscalationPolicy is an ordered list of levels walked on timeout
type EscalationPolicy struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Name        string           `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Description string           `gorm:"type:text" json:"description"`
	Levels      EscalationLevels `gorm:"type:jsonb" json:"levels"`
	RepeatCount int              `gorm:"not null;default:0" json:"repeat_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Level returns the 1-indexed level n, or false when out of range
func (p *EscalationPolicy) Level(n int) (EscalationLevel, bool) {
	if n < 1 || n > len(p.Levels) {
		return EscalationLevel{}, false
	}
	return p.Levels[n-1], true
}

func (EscalationPolicy) TableName() string {
	return "escalation_policies"
}

// ServiceMapping routes incidents to an escalation policy by service glob
type ServiceMapping struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	ServicePattern     string     `gorm:"size:255;not null" json:"service_pattern"`
	SeverityFilter     StringList `gorm:"type:jsonb" json:"severity_filter"`
	EscalationPolicyID uint       `gorm:"not null;index" json:"escalation_policy_id"`
	Priority           int        `gorm:"not null;default:0;index" json:"priority"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	EscalationPolicy EscalationPolicy `gorm:"foreignKey:EscalationPolicyID" json:"escalation_policy,omitempty"`
}

func (ServiceMapping) TableName() string {
	return "service_mappings"
}

// EscalationStateValue is the state of an incident's escalation timer
type EscalationStateValue string

const (
	// EscalationPending is written with the incident; level 1 has not been paged yet
	EscalationPending   EscalationStateValue = "pending"
	EscalationActive    EscalationStateValue = "active"
	EscalationInactive  EscalationStateValue = "inactive"
	EscalationExhausted EscalationStateValue = "exhausted"
)

// EscalationState is the durable timer for one incident. The scanner fires it
// when DueAt passes; Version guards concurrent transitions.
type EscalationState struct {
	ID               uint                 `gorm:"primaryKey" json:"id"`
	IncidentID       uint                 `gorm:"uniqueIndex;not null" json:"incident_id"`
	PolicyID         uint                 `gorm:"not null" json:"policy_id"`
	State            EscalationStateValue `gorm:"size:20;not null;index:idx_escalation_due,priority:1" json:"state"`
	CurrentLevel     int                  `gorm:"not null" json:"current_level"`
	RepeatsRemaining int                  `gorm:"not null" json:"repeats_remaining"`
	LevelEnteredAt   time.Time            `gorm:"not null" json:"level_entered_at"`
	TimeoutMinutes   int                  `gorm:"not null" json:"timeout_minutes"`
	DueAt            time.Time            `gorm:"not null;index:idx_escalation_due,priority:2" json:"due_at"`
	Version          int                  `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

func (EscalationState) TableName() string {
	return "escalation_states"
}
