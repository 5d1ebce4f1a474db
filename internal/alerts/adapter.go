package alerts

import (
	"net/http"
	"strings"
	"time"

	"github.com/akmatori/responder/internal/database"
)

// NormalizedAlert is the canonical alert shape every source produces
type NormalizedAlert struct {
	Name        string               `json:"name"`
	Source      string               `json:"source"`
	Service     string               `json:"service"`
	Host        string               `json:"host"`
	Environment string               `json:"environment"`
	Severity    database.Severity    `json:"severity"`
	Status      database.AlertStatus `json:"status"`
	Description string               `json:"description"`

	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`

	GeneratorURL string `json:"generator_url"`

	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

// IsResolved reports whether the payload signals the problem ended
func (n NormalizedAlert) IsResolved() bool {
	return n.Status == database.AlertStatusResolved
}

// Sanitize degrades malformed fields to safe defaults. Alerts are never rejected.
func (n NormalizedAlert) Sanitize(now time.Time) NormalizedAlert {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		n.Name = "unknown"
	}
	if n.Source == "" {
		n.Source = "api"
	}
	n.Service = strings.TrimSpace(n.Service)
	n.Host = strings.TrimSpace(n.Host)

	n.Severity = NormalizeSeverity(string(n.Severity))
	if n.Status != database.AlertStatusResolved {
		n.Status = database.AlertStatusFiring
	}

	if n.Labels == nil {
		n.Labels = map[string]string{}
	}
	if n.Annotations == nil {
		n.Annotations = map[string]string{}
	}

	if n.StartsAt == nil || n.StartsAt.IsZero() {
		t := now.UTC()
		n.StartsAt = &t
	} else {
		t := n.StartsAt.UTC()
		n.StartsAt = &t
	}
	if n.EndsAt != nil {
		if n.EndsAt.IsZero() {
			n.EndsAt = nil
		} else {
			t := n.EndsAt.UTC()
			n.EndsAt = &t
		}
	}
	return n
}

// AlertAdapter parses one vendor's webhook body into canonical alerts
type AlertAdapter interface {
	// GetSourceType returns the source type name (e.g., "alertmanager")
	GetSourceType() string

	// ValidateWebhookSecret checks the request against the configured secret
	ValidateWebhookSecret(r *http.Request, secret string) error

	// ParsePayload parses the raw request body into normalized alerts.
	// A single webhook can contain multiple alerts (e.g., Alertmanager groups)
	ParsePayload(body []byte) ([]NormalizedAlert, error)
}

// BaseAdapter provides common functionality for all adapters
type BaseAdapter struct {
	SourceType string
}

// GetSourceType returns the source type name
func (b *BaseAdapter) GetSourceType() string {
	return b.SourceType
}

// CheckSecret accepts the raw secret or a bearer token in the given header or Authorization
func CheckSecret(r *http.Request, header, secret string) bool {
	if secret == "" {
		return true
	}
	got := r.Header.Get(header)
	if got == "" {
		got = r.Header.Get("Authorization")
	}
	return got == secret || got == "Bearer "+secret
}

// NormalizeSeverity maps vendor severity strings onto the five canonical levels
func NormalizeSeverity(severity string) database.Severity {
	severity = strings.ToLower(strings.TrimSpace(severity))

	if s := database.Severity(severity); s.IsValid() {
		return s
	}
	for normalized, aliases := range DefaultSeverityMapping {
		for _, alias := range aliases {
			if alias == severity {
				return normalized
			}
		}
	}

	// Default to warning if unknown
	return database.SeverityWarning
}

// NormalizeStatus normalizes status strings to firing or resolved
func NormalizeStatus(status string) database.AlertStatus {
	switch strings.ToLower(status) {
	case "resolved", "ok", "recovery", "inactive", "normal":
		return database.AlertStatusResolved
	default:
		return database.AlertStatusFiring
	}
}

// DefaultSeverityMapping lists aliases for each canonical severity
var DefaultSeverityMapping = map[database.Severity][]string{
	database.SeverityCritical: {"disaster", "p1", "5", "emergency", "fatal", "error", "page"},
	database.SeverityHigh:     {"major", "p2", "4", "severe"},
	database.SeverityWarning:  {"p3", "3", "average", "warn"},
	database.SeverityLow:      {"minor", "p4", "2", "notice"},
	database.SeverityInfo:     {"informational", "p5", "1", "debug", "none"},
}
