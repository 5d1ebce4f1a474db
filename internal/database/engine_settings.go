package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// EngineSettings holds the persisted processing windows (singleton row).
// Values seeded from the environment on first start win until edited.
type EngineSettings struct {
	ID                            uint      `gorm:"primaryKey" json:"id"`
	DedupWindowSeconds            int       `gorm:"default:300" json:"dedup_window_seconds"`
	CorrelationWindowSeconds      int       `gorm:"default:600" json:"correlation_window_seconds"`
	NotificationCooldownSeconds   int       `gorm:"default:300" json:"notification_cooldown_seconds"`
	EscalationScanIntervalSeconds int       `gorm:"default:15" json:"escalation_scan_interval_seconds"`
	CreatedAt                     time.Time `json:"created_at"`
	UpdatedAt                     time.Time `json:"updated_at"`
}

func (EngineSettings) TableName() string {
	return "engine_settings"
}

// NewDefaultEngineSettings returns settings with default values
func NewDefaultEngineSettings() *EngineSettings {
	return &EngineSettings{
		DedupWindowSeconds:            300,
		CorrelationWindowSeconds:      600,
		NotificationCooldownSeconds:   300,
		EscalationScanIntervalSeconds: 15,
	}
}

// DedupWindow returns the dedup window as a duration
func (s *EngineSettings) DedupWindow() time.Duration {
	return time.Duration(s.DedupWindowSeconds) * time.Second
}

// CorrelationWindow returns the correlation window as a duration
func (s *EngineSettings) CorrelationWindow() time.Duration {
	return time.Duration(s.CorrelationWindowSeconds) * time.Second
}

// NotificationCooldown returns the cooldown as a duration
func (s *EngineSettings) NotificationCooldown() time.Duration {
	return time.Duration(s.NotificationCooldownSeconds) * time.Second
}

// EscalationScanInterval returns the scanner tick as a duration
func (s *EngineSettings) EscalationScanInterval() time.Duration {
	return time.Duration(s.EscalationScanIntervalSeconds) * time.Second
}

// GetOrCreateEngineSettings retrieves the settings row, creating it from
// defaults when missing. Accepts a db parameter to support transactions and testing.
func GetOrCreateEngineSettings(db *gorm.DB, defaults *EngineSettings) (*EngineSettings, error) {
	var settings EngineSettings
	result := db.First(&settings)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if defaults == nil {
			defaults = NewDefaultEngineSettings()
		}
		settings = *defaults
		settings.ID = 0
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateEngineSettings saves the settings row
func UpdateEngineSettings(db *gorm.DB, settings *EngineSettings) error {
	return db.Save(settings).Error
}
