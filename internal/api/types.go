package api

import (
	"time"

	"github.com/akmatori/responder/internal/alerts"
	"github.com/akmatori/responder/internal/database"
)

// ========== Ingest Types ==========

// AlertInput is one canonical alert as accepted by POST /api/v1/alerts.
// Unknown severities and statuses are normalized downstream, not rejected.
type AlertInput struct {
	Name         string            `json:"name" validate:"max=255"`
	Source       string            `json:"source" validate:"max=64"`
	Service      string            `json:"service" validate:"max=255"`
	Host         string            `json:"host" validate:"max=255"`
	Environment  string            `json:"environment" validate:"max=64"`
	Severity     string            `json:"severity" validate:"max=20"`
	Status       string            `json:"status" validate:"max=20"`
	Description  string            `json:"description"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	GeneratorURL string            `json:"generator_url"`
	StartsAt     *time.Time        `json:"starts_at"`
	EndsAt       *time.Time        `json:"ends_at"`
}

// IngestRequest is the body of POST /api/v1/alerts: either a single alert
// or a batch under "alerts".
type IngestRequest struct {
	AlertInput
	Alerts []AlertInput `json:"alerts" validate:"omitempty,max=500,dive"`
}

// Items returns the alerts carried by the request
func (r IngestRequest) Items() []AlertInput {
	if len(r.Alerts) > 0 {
		return r.Alerts
	}
	return []AlertInput{r.AlertInput}
}

// ToNormalized converts the input to the canonical alert
func (a AlertInput) ToNormalized() alerts.NormalizedAlert {
	return alerts.NormalizedAlert{
		Name:         a.Name,
		Source:       a.Source,
		Service:      a.Service,
		Host:         a.Host,
		Environment:  a.Environment,
		Severity:     database.Severity(a.Severity),
		Status:       database.AlertStatus(a.Status),
		Description:  a.Description,
		Labels:       a.Labels,
		Annotations:  a.Annotations,
		GeneratorURL: a.GeneratorURL,
		StartsAt:     a.StartsAt,
		EndsAt:       a.EndsAt,
	}
}

// IngestResult is the per-alert outcome returned by the ingest endpoints
type IngestResult struct {
	AlertID    string  `json:"alert_id"`
	IsNew      bool    `json:"is_new"`
	Suppressed bool    `json:"suppressed"`
	IncidentID *string `json:"incident_id"`
}

// IngestResponse is the 202 body of the ingest endpoints
type IngestResponse struct {
	Results []IngestResult `json:"results"`
}

// ========== Incident Types ==========

// ActionRequest is the optional body of acknowledge and resolve actions
type ActionRequest struct {
	Actor string `json:"actor" validate:"omitempty,max=128"`
}

// IncidentListItem is a compact representation of an incident for list views
type IncidentListItem struct {
	ID             string                  `json:"id"`
	Title          string                  `json:"title"`
	Service        string                  `json:"service"`
	Status         database.IncidentStatus `json:"status"`
	Severity       database.Severity       `json:"severity"`
	AlertCount     int                     `json:"alert_count"`
	StartedAt      time.Time               `json:"started_at"`
	LastAlertAt    time.Time               `json:"last_alert_at"`
	AcknowledgedAt *time.Time              `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string                  `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time              `json:"resolved_at,omitempty"`
	ResolvedBy     string                  `json:"resolved_by,omitempty"`
}

// AlertItem is an alert as rendered inside incident details and alert actions
type AlertItem struct {
	ID             string               `json:"id"`
	Fingerprint    string               `json:"fingerprint"`
	Name           string               `json:"name"`
	Source         string               `json:"source"`
	Service        string               `json:"service"`
	Host           string               `json:"host"`
	Status         database.AlertStatus `json:"status"`
	Severity       database.Severity    `json:"severity"`
	Labels         map[string]string    `json:"labels"`
	DuplicateCount int                  `json:"duplicate_count"`
	StartsAt       time.Time            `json:"starts_at"`
	LastReceivedAt time.Time            `json:"last_received_at"`
	ResolvedAt     *time.Time           `json:"resolved_at,omitempty"`
}

// TimelineEntry is one incident event
type TimelineEntry struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Actor       string                 `json:"actor"`
	Data        map[string]interface{} `json:"data,omitempty"`
	At          time.Time              `json:"at"`
}

// IncidentDetail is an incident with its member alerts and timeline
type IncidentDetail struct {
	IncidentListItem
	Alerts   []AlertItem     `json:"alerts"`
	Timeline []TimelineEntry `json:"timeline"`
}

// ========== Schedule Types ==========

// OnCallUser is the user holding a schedule
type OnCallUser struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// OnCallResponse is the body of GET /api/v1/schedules/{id}/oncall
type OnCallResponse struct {
	ScheduleID  uint        `json:"schedule_id"`
	Schedule    string      `json:"schedule"`
	At          time.Time   `json:"at"`
	User        *OnCallUser `json:"user"`
	Override    bool        `json:"override"`
	NextHandoff time.Time   `json:"next_handoff"`
}

// ========== Pagination Types ==========

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}
