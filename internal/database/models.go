package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	return scanJSON(value, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringMap is a JSON column holding string key/value pairs (alert labels)
type StringMap map[string]string

// Scan implements the sql.Scanner interface
func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(map[string]string)
		return nil
	}
	return scanJSON(value, m)
}

// Value implements the driver.Valuer interface
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// StringList is a JSON column holding an ordered list of strings
type StringList []string

// Scan implements the sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	return scanJSON(value, l)
}

// Value implements the driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Contains reports whether s is in the list
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// scanJSON decodes a driver value that may arrive as []byte or string
func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

// Severity represents normalized severity levels
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank returns the ordinal of the severity, higher is more severe.
// Unknown values rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityWarning:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether s is one of the known severities
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// MaxSeverity returns the more severe of a and b
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// GetSeverityEmoji returns an emoji for the severity
func GetSeverityEmoji(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":red_circle:"
	case SeverityHigh:
		return ":large_orange_circle:"
	case SeverityWarning:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	case SeverityInfo:
		return ":white_circle:"
	default:
		return ":white_circle:"
	}
}

// AlertStatus represents the lifecycle status of an alert
type AlertStatus string

const (
	AlertStatusFiring       AlertStatus = "firing"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusSuppressed   AlertStatus = "suppressed"
	AlertStatusArchived     AlertStatus = "archived"
)

// Alert is one observed problem occurrence stream, collapsed by fingerprint
type Alert struct {
	ID             uint        `gorm:"primaryKey" json:"-"`
	UUID           string      `gorm:"uniqueIndex;size:36;not null" json:"id"`
	Fingerprint    string      `gorm:"size:64;not null;index:idx_alert_fp_received,priority:1" json:"fingerprint"`
	Source         string      `gorm:"size:64" json:"source"`
	Name           string      `gorm:"size:255;not null" json:"name"`
	Description    string      `gorm:"type:text" json:"description"`
	Status         AlertStatus `gorm:"size:20;not null;index" json:"status"`
	Severity       Severity    `gorm:"size:20;not null" json:"severity"`
	Service        string      `gorm:"size:255;index" json:"service"`
	Host           string      `gorm:"size:255" json:"host"`
	Environment    string      `gorm:"size:64" json:"environment"`
	Labels         StringMap   `gorm:"type:jsonb" json:"labels"`
	Annotations    StringMap   `gorm:"type:jsonb" json:"annotations"`
	Tags           StringList  `gorm:"type:jsonb" json:"tags"`
	GeneratorURL   string      `gorm:"type:text" json:"generator_url,omitempty"`
	StartsAt       time.Time   `gorm:"not null" json:"starts_at"`
	EndsAt         *time.Time  `json:"ends_at,omitempty"`
	LastReceivedAt time.Time   `gorm:"not null;index:idx_alert_fp_received,priority:2" json:"last_received_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	DuplicateCount int         `gorm:"not null;default:1" json:"duplicate_count"`
	IncidentID     *uint       `gorm:"index" json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`

	Occurrences []AlertOccurrence `gorm:"foreignKey:AlertID" json:"occurrences,omitempty"`
}

// BeforeCreate assigns the public UUID
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.New().String()
	}
	return nil
}

func (Alert) TableName() string {
	return "alerts"
}

// AlertOccurrence is an append-only record of one alert arrival
type AlertOccurrence struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AlertID    uint      `gorm:"not null;index" json:"alert_id"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
}

func (AlertOccurrence) TableName() string {
	return "alert_occurrences"
}

// User is a notification target for escalation. Management is external.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Email       string    `gorm:"size:255" json:"email"`
	SlackUserID string    `gorm:"size:64" json:"slack_user_id"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
