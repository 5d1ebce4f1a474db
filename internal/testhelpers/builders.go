package testhelpers

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/alerts"
	"github.com/akmatori/responder/internal/database"
)

// ========================================
// Normalized Alert Builder
// ========================================

// NormalizedAlertBuilder builds NormalizedAlert instances for testing
type NormalizedAlertBuilder struct {
	alert alerts.NormalizedAlert
}

// NewAlertBuilder creates a new alert builder with defaults
func NewAlertBuilder() *NormalizedAlertBuilder {
	return &NormalizedAlertBuilder{
		alert: alerts.NormalizedAlert{
			Name:     "HighCPU",
			Source:   "prometheus",
			Service:  "api",
			Host:     "web-01",
			Severity: database.SeverityWarning,
			Status:   database.AlertStatusFiring,
			Labels:   map[string]string{},
		},
	}
}

// WithName sets the alert name
func (b *NormalizedAlertBuilder) WithName(name string) *NormalizedAlertBuilder {
	b.alert.Name = name
	return b
}

// WithSource sets the alert source
func (b *NormalizedAlertBuilder) WithSource(source string) *NormalizedAlertBuilder {
	b.alert.Source = source
	return b
}

// WithSeverity sets the severity
func (b *NormalizedAlertBuilder) WithSeverity(severity database.Severity) *NormalizedAlertBuilder {
	b.alert.Severity = severity
	return b
}

// Resolved marks the payload as a resolution
func (b *NormalizedAlertBuilder) Resolved() *NormalizedAlertBuilder {
	b.alert.Status = database.AlertStatusResolved
	return b
}

// WithHost sets the host
func (b *NormalizedAlertBuilder) WithHost(host string) *NormalizedAlertBuilder {
	b.alert.Host = host
	return b
}

// WithService sets the service
func (b *NormalizedAlertBuilder) WithService(service string) *NormalizedAlertBuilder {
	b.alert.Service = service
	return b
}

// WithLabel adds a label
func (b *NormalizedAlertBuilder) WithLabel(key, value string) *NormalizedAlertBuilder {
	b.alert.Labels[key] = value
	return b
}

// StartedAt sets starts_at
func (b *NormalizedAlertBuilder) StartedAt(t time.Time) *NormalizedAlertBuilder {
	b.alert.StartsAt = &t
	return b
}

// Build returns the constructed alert
func (b *NormalizedAlertBuilder) Build() alerts.NormalizedAlert {
	labels := make(map[string]string, len(b.alert.Labels))
	for k, v := range b.alert.Labels {
		labels[k] = v
	}
	out := b.alert
	out.Labels = labels
	return out
}

// ========================================
// Reference data
// ========================================

// CreateUser inserts an active user
func CreateUser(t *testing.T, db *gorm.DB, name string) database.User {
	t.Helper()
	u := database.User{Name: name, Email: name + "@example.com", IsActive: true}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

// CreateSchedule inserts a weekly schedule rotating over the given users
func CreateSchedule(t *testing.T, db *gorm.DB, name string, effectiveFrom time.Time, userIDs ...uint) database.OnCallSchedule {
	t.Helper()
	s := database.OnCallSchedule{
		Name:          name,
		RotationType:  database.RotationWeekly,
		HandoffTime:   "09:00",
		Timezone:      "UTC",
		EffectiveFrom: effectiveFrom,
	}
	for i, id := range userIDs {
		s.Members = append(s.Members, database.OnCallMember{UserID: id, Order: i})
	}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("failed to create schedule: %v", err)
	}
	return s
}

// CreatePolicy inserts a policy with one level per timeout, each targeting the given target
func CreatePolicy(t *testing.T, db *gorm.DB, name string, repeat int, target database.EscalationTarget, timeouts ...int) database.EscalationPolicy {
	t.Helper()
	p := database.EscalationPolicy{Name: name, RepeatCount: repeat}
	for i, m := range timeouts {
		p.Levels = append(p.Levels, database.EscalationLevel{
			Level:          i + 1,
			TimeoutMinutes: m,
			Targets:        []database.EscalationTarget{target},
		})
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	return p
}

// CreateMapping routes a service pattern to a policy
func CreateMapping(t *testing.T, db *gorm.DB, pattern string, policyID uint, priority int, severities ...string) database.ServiceMapping {
	t.Helper()
	m := database.ServiceMapping{
		ServicePattern:     pattern,
		EscalationPolicyID: policyID,
		Priority:           priority,
		SeverityFilter:     severities,
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("failed to create mapping: %v", err)
	}
	return m
}

// CreateChannel inserts an active notification channel
func CreateChannel(t *testing.T, db *gorm.DB, name string, channelType database.ChannelType, config database.JSONB) database.NotificationChannel {
	t.Helper()
	c := database.NotificationChannel{Name: name, ChannelType: channelType, Config: config, IsActive: true}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}
	return c
}

// CreateSilence inserts an active silence window
func CreateSilence(t *testing.T, db *gorm.DB, matchers database.SilenceMatchers, startsAt, endsAt time.Time) database.SilenceWindow {
	t.Helper()
	s := database.SilenceWindow{Name: "maintenance", Matchers: matchers, StartsAt: startsAt, EndsAt: endsAt, IsActive: true}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("failed to create silence: %v", err)
	}
	return s
}

// CreateIncident inserts an open incident with one firing member alert per
// service. The first service is the primary one.
func CreateIncident(t *testing.T, db *gorm.DB, title string, severity database.Severity, services ...string) database.Incident {
	t.Helper()
	now := time.Now().UTC()
	primary := ""
	if len(services) > 0 {
		primary = services[0]
	}
	inc := database.Incident{
		Title:       title,
		Service:     primary,
		Status:      database.IncidentStatusOpen,
		Severity:    severity,
		AlertCount:  len(services),
		StartedAt:   now,
		LastAlertAt: now,
	}
	if err := db.Create(&inc).Error; err != nil {
		t.Fatalf("failed to create incident: %v", err)
	}
	for i, svc := range services {
		a := database.Alert{
			Fingerprint:    fmt.Sprintf("fp-%d-%d", inc.ID, i),
			Source:         "test",
			Name:           title,
			Status:         database.AlertStatusFiring,
			Severity:       severity,
			Service:        svc,
			StartsAt:       now,
			LastReceivedAt: now,
			DuplicateCount: 1,
			IncidentID:     &inc.ID,
		}
		if err := db.Create(&a).Error; err != nil {
			t.Fatalf("failed to create alert: %v", err)
		}
	}
	return inc
}
