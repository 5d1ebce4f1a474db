package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IncidentStatus represents the status of an incident
type IncidentStatus string

const (
	IncidentStatusOpen         IncidentStatus = "open"
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	IncidentStatusResolved     IncidentStatus = "resolved"
)

// OpenIncidentStatuses are the statuses an incident can still accept alerts in
var OpenIncidentStatuses = []IncidentStatus{IncidentStatusOpen, IncidentStatusAcknowledged}

// Incident groups correlated alerts into one unit of response
type Incident struct {
	ID             uint           `gorm:"primaryKey" json:"-"`
	UUID           string         `gorm:"uniqueIndex;size:36;not null" json:"id"`
	Title          string         `gorm:"size:512" json:"title"`
	Service        string         `gorm:"size:255;index:idx_incident_service_status,priority:1" json:"service"`
	Status         IncidentStatus `gorm:"size:20;not null;default:'open';index:idx_incident_service_status,priority:2" json:"status"`
	Severity       Severity       `gorm:"size:20;not null" json:"severity"`
	AlertCount     int            `gorm:"not null;default:0" json:"alert_count"`
	StartedAt      time.Time      `gorm:"not null" json:"started_at"`
	LastAlertAt    time.Time      `gorm:"not null" json:"last_alert_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string         `gorm:"size:128" json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy     string         `gorm:"size:128" json:"resolved_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	Alerts []Alert         `gorm:"foreignKey:IncidentID" json:"alerts,omitempty"`
	Events []IncidentEvent `gorm:"foreignKey:IncidentID" json:"events,omitempty"`
}

// BeforeCreate assigns the public UUID
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == "" {
		i.UUID = uuid.New().String()
	}
	return nil
}

// IsOpen returns true while the incident still accepts alerts
func (i *Incident) IsOpen() bool {
	return i.Status == IncidentStatusOpen || i.Status == IncidentStatusAcknowledged
}

// Services returns the distinct non-empty services of the loaded member alerts
func (i *Incident) Services() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range i.Alerts {
		if a.Service == "" || seen[a.Service] {
			continue
		}
		seen[a.Service] = true
		out = append(out, a.Service)
	}
	return out
}

func (Incident) TableName() string {
	return "incidents"
}

// Incident event types
const (
	EventCreated             = "created"
	EventAlertAdded          = "alert_added"
	EventSeverityChanged     = "severity_changed"
	EventAcknowledged        = "acknowledged"
	EventResolved            = "resolved"
	EventAutoResolved        = "auto_resolved"
	EventEscalated           = "escalated"
	EventEscalationExhausted = "escalation_exhausted"
)

// IncidentEvent is an immutable audit entry on an incident's timeline
type IncidentEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	IncidentID  uint      `gorm:"not null;index" json:"-"`
	EventType   string    `gorm:"size:64;not null" json:"event_type"`
	Description string    `gorm:"type:text" json:"description"`
	Actor       string    `gorm:"size:128;not null;default:'system'" json:"actor"`
	Data        JSONB     `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (IncidentEvent) TableName() string {
	return "incident_events"
}
