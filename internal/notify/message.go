package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/services"
)

var eventLabels = map[string]string{
	services.NotifyIncidentCreated:      "New Incident",
	services.NotifySeverityChanged:      "Severity Escalated",
	services.NotifyIncidentAcknowledged: "Incident Acknowledged",
	services.NotifyIncidentResolved:     "Incident Resolved",
}

var severityColors = map[database.Severity]string{
	database.SeverityCritical: "#ef4444",
	database.SeverityHigh:     "#f97316",
	database.SeverityWarning:  "#eab308",
	database.SeverityLow:      "#3b82f6",
	database.SeverityInfo:     "#6b7280",
}

// Message is what a sender renders for one incident event. Incident.Alerts
// is loaded.
type Message struct {
	EventType    string
	Incident     *database.Incident
	DashboardURL string
	At           time.Time
}

// Label is the human title of the event
func (m *Message) Label() string {
	if l, ok := eventLabels[m.EventType]; ok {
		return l
	}
	return m.EventType
}

// Services returns the sorted distinct services of the member alerts
func (m *Message) Services() []string {
	services := m.Incident.Services()
	sort.Strings(services)
	return services
}

// ServiceText joins the services for display
func (m *Message) ServiceText() string {
	services := m.Services()
	if len(services) == 0 {
		return "unknown"
	}
	return strings.Join(services, ", ")
}

// AlertCount is the number of member alerts
func (m *Message) AlertCount() int {
	if len(m.Incident.Alerts) > 0 {
		return len(m.Incident.Alerts)
	}
	return m.Incident.AlertCount
}

// Summary is a one-line description of the incident
func (m *Message) Summary() string {
	return fmt.Sprintf("[%s] %s (%d alerts)", strings.ToUpper(string(m.Incident.Severity)), m.Incident.Title, m.AlertCount())
}

// IncidentURL links to the incident on the dashboard
func (m *Message) IncidentURL() string {
	if m.DashboardURL == "" {
		return ""
	}
	return strings.TrimRight(m.DashboardURL, "/") + "/incidents/" + m.Incident.UUID
}

// SeverityColor returns the hex color used for a severity
func SeverityColor(s database.Severity) string {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return "#6b7280"
}
