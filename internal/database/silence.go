package database

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// SilenceMatchers holds the optional matchers of a silence window.
// Absent matchers are wildcards; present ones are AND-combined.
type SilenceMatchers struct {
	Service  []string          `json:"service,omitempty" yaml:"service"`
	Severity []string          `json:"severity,omitempty" yaml:"severity"`
	Labels   map[string]string `json:"labels,omitempty" yaml:"labels"`
}

// Scan implements the sql.Scanner interface
func (m *SilenceMatchers) Scan(value interface{}) error {
	if value == nil {
		*m = SilenceMatchers{}
		return nil
	}
	return scanJSON(value, m)
}

// Value implements the driver.Valuer interface
func (m SilenceMatchers) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// SilenceWindow suppresses matching alerts during a maintenance period
type SilenceWindow struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	Matchers  SilenceMatchers `gorm:"type:jsonb" json:"matchers"`
	StartsAt  time.Time       `gorm:"not null;index" json:"starts_at"`
	EndsAt    time.Time       `gorm:"not null;index" json:"ends_at"`
	IsActive  bool            `gorm:"not null" json:"is_active"`
	CreatedBy string          `gorm:"size:128" json:"created_by"`
	Reason    string          `gorm:"type:text" json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CoversTime reports whether the window is enabled and now falls inside it (inclusive)
func (s *SilenceWindow) CoversTime(now time.Time) bool {
	return s.IsActive && !now.Before(s.StartsAt) && !now.After(s.EndsAt)
}

func (SilenceWindow) TableName() string {
	return "silence_windows"
}
