package alerts

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akmatori/responder/internal/database"
)

func TestSanitize_DefaultsMalformedFields(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	got := NormalizedAlert{Name: "  ", Severity: "bogus", Status: "weird"}.Sanitize(now)

	if got.Name != "unknown" {
		t.Errorf("expected name 'unknown', got %q", got.Name)
	}
	if got.Source != "api" {
		t.Errorf("expected default source 'api', got %q", got.Source)
	}
	if got.Severity != database.SeverityWarning {
		t.Errorf("expected severity warning, got %q", got.Severity)
	}
	if got.Status != database.AlertStatusFiring {
		t.Errorf("expected status firing, got %q", got.Status)
	}
	if got.Labels == nil || got.Annotations == nil {
		t.Error("expected nil maps to be initialized")
	}
	if got.StartsAt == nil || !got.StartsAt.Equal(now) {
		t.Errorf("expected starts_at to default to now, got %v", got.StartsAt)
	}
}

func TestSanitize_KeepsValidFieldsAndConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start := time.Date(2026, 5, 1, 14, 0, 0, 0, loc)
	var zero time.Time

	got := NormalizedAlert{
		Name:     "HighCPU",
		Source:   "prometheus",
		Service:  " api ",
		Severity: "CRITICAL",
		Status:   database.AlertStatusResolved,
		StartsAt: &start,
		EndsAt:   &zero,
	}.Sanitize(time.Now())

	if got.Service != "api" {
		t.Errorf("expected trimmed service, got %q", got.Service)
	}
	if got.Severity != database.SeverityCritical {
		t.Errorf("expected critical, got %q", got.Severity)
	}
	if !got.IsResolved() {
		t.Error("expected resolved status to be kept")
	}
	if got.StartsAt.Location() != time.UTC || got.StartsAt.Hour() != 12 {
		t.Errorf("expected UTC starts_at, got %v", got.StartsAt)
	}
	if got.EndsAt != nil {
		t.Errorf("expected zero ends_at to become nil, got %v", got.EndsAt)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected database.AlertStatus
	}{
		{"firing", database.AlertStatusFiring},
		{"alerting", database.AlertStatusFiring},
		{"Resolved", database.AlertStatusResolved},
		{"ok", database.AlertStatusResolved},
		{"normal", database.AlertStatusResolved},
		{"", database.AlertStatusFiring},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeStatus(tt.input); got != tt.expected {
				t.Errorf("NormalizeStatus(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCheckSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if !CheckSecret(req, "X-Test-Secret", "") {
		t.Error("expected empty secret to accept any request")
	}
	if CheckSecret(req, "X-Test-Secret", "s") {
		t.Error("expected missing header to be rejected")
	}
	req.Header.Set("X-Test-Secret", "s")
	if !CheckSecret(req, "X-Test-Secret", "s") {
		t.Error("expected matching header to be accepted")
	}
}
