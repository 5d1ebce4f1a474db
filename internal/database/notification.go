package database

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ChannelType identifies the delivery mechanism of a notification channel
type ChannelType string

const (
	ChannelSlack     ChannelType = "slack"
	ChannelTeams     ChannelType = "teams"
	ChannelEmail     ChannelType = "email"
	ChannelWebhook   ChannelType = "webhook"
	ChannelPagerDuty ChannelType = "pagerduty"
)

// ChannelFilters restricts which incidents a channel receives.
// Empty lists match everything.
type ChannelFilters struct {
	Severity []string `json:"severity,omitempty" yaml:"severity"`
	Service  []string `json:"service,omitempty" yaml:"service"`
}

// Scan implements the sql.Scanner interface
func (f *ChannelFilters) Scan(value interface{}) error {
	if value == nil {
		*f = ChannelFilters{}
		return nil
	}
	return scanJSON(value, f)
}

// Value implements the driver.Valuer interface
func (f ChannelFilters) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// NotificationChannel is an admin-configured delivery destination
type NotificationChannel struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:255;uniqueIndex;not null" json:"name"`
	ChannelType ChannelType    `gorm:"size:20;not null" json:"channel_type"`
	Config      JSONB          `gorm:"type:jsonb" json:"config"`
	Filters     ChannelFilters `gorm:"type:jsonb" json:"filters"`
	IsActive    bool           `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ConfigString returns a string config value or ""
func (c *NotificationChannel) ConfigString(key string) string {
	if v, ok := c.Config[key].(string); ok {
		return v
	}
	return ""
}

func (NotificationChannel) TableName() string {
	return "notification_channels"
}

// NotificationStatus is the delivery outcome of a notification
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// MaxErrorMessageLength bounds the stored delivery error
const MaxErrorMessageLength = 500

// NotificationLog is the delivery record of one notification attempt.
// ChannelID is nil for direct user pages, in which case Target names the user.
type NotificationLog struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	ChannelID    *uint              `gorm:"index:idx_notification_channel_incident,priority:1" json:"channel_id,omitempty"`
	IncidentID   uint               `gorm:"not null;index:idx_notification_channel_incident,priority:2" json:"incident_id"`
	EventType    string             `gorm:"size:64;not null" json:"event_type"`
	Target       string             `gorm:"size:255" json:"target,omitempty"`
	Status       NotificationStatus `gorm:"size:20;not null" json:"status"`
	ErrorMessage string             `gorm:"size:500" json:"error_message,omitempty"`
	SentAt       *time.Time         `json:"sent_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

func (NotificationLog) TableName() string {
	return "notification_logs"
}

// TruncateError bounds an error message to MaxErrorMessageLength bytes
// without splitting a UTF-8 sequence.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorMessageLength {
		return msg
	}
	cut := MaxErrorMessageLength
	for cut > 0 && !isRuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
