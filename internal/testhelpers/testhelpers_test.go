package testhelpers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akmatori/responder/internal/database"
)

func TestHTTPTestContext_NewAndExecute(t *testing.T) {
	ctx := NewHTTPTestContext(t, http.MethodGet, "/test", nil)

	if ctx.Recorder == nil {
		t.Error("Recorder should not be nil")
	}
	if ctx.Request.Method != http.MethodGet {
		t.Errorf("expected method GET, got %s", ctx.Request.Method)
	}

	ctx.Execute(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("hello"))
	}))

	ctx.AssertStatus(http.StatusTeapot).AssertBodyContains("hello")
}

func TestHTTPTestContext_WithJSONBody(t *testing.T) {
	ctx := NewHTTPTestContext(t, http.MethodPost, "/test?x=1", nil).
		WithHeader("X-Custom", "value").
		WithJSONBody(map[string]string{"key": "value"})

	if got := ctx.Request.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", got)
	}
	if got := ctx.Request.Header.Get("X-Custom"); got != "value" {
		t.Errorf("headers should survive a body swap, got %q", got)
	}
	if got := ctx.Request.URL.Query().Get("x"); got != "1" {
		t.Errorf("query should survive a body swap, got %q", got)
	}

	var body map[string]string
	if err := json.NewDecoder(ctx.Request.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode request body: %v", err)
	}
	if body["key"] != "value" {
		t.Errorf("expected key=value, got %v", body)
	}
}

func TestHTTPTestContext_DecodeJSON(t *testing.T) {
	ctx := NewHTTPTestContext(t, http.MethodGet, "/test", nil)

	ctx.Execute(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))

	var result map[string]string
	ctx.AssertHeader("Content-Type", "application/json").DecodeJSON(&result)

	if result["result"] != "ok" {
		t.Errorf("expected result 'ok', got %q", result["result"])
	}
}

func TestMockAlertAdapter_WithAlerts(t *testing.T) {
	alert := NewAlertBuilder().WithName("TestAlert").Build()
	mock := NewMockAlertAdapter("grafana").WithAlerts(alert)

	if mock.GetSourceType() != "grafana" {
		t.Errorf("expected source type 'grafana', got %s", mock.GetSourceType())
	}
	parsed, err := mock.ParsePayload(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Name != "TestAlert" {
		t.Errorf("expected one alert named TestAlert, got %+v", parsed)
	}
	if mock.ParseCalls != 1 {
		t.Errorf("expected 1 parse call, got %d", mock.ParseCalls)
	}
}

func TestMockAlertAdapter_Errors(t *testing.T) {
	parseErr := errors.New("parse failed")
	secretErr := errors.New("invalid secret")
	mock := NewMockAlertAdapter("datadog").WithParseError(parseErr)

	if _, err := mock.ParsePayload(nil); err != parseErr {
		t.Errorf("expected error %v, got %v", parseErr, err)
	}
	if err := mock.ValidateWebhookSecret(nil, ""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	mock.WithValidationError(secretErr)
	if err := mock.ValidateWebhookSecret(nil, ""); err != secretErr {
		t.Errorf("expected error %v, got %v", secretErr, err)
	}
}

func TestNormalizedAlertBuilder(t *testing.T) {
	builder := NewAlertBuilder().
		WithName("HighCPU").
		WithSeverity(database.SeverityCritical).
		WithHost("prod-server-1").
		WithService("nginx").
		WithLabel("env", "production")
	alert := builder.Build()

	if alert.Name != "HighCPU" {
		t.Errorf("expected Name 'HighCPU', got %s", alert.Name)
	}
	if alert.Severity != database.SeverityCritical {
		t.Errorf("expected Severity 'critical', got %s", alert.Severity)
	}
	if alert.Host != "prod-server-1" || alert.Service != "nginx" {
		t.Errorf("unexpected target %s/%s", alert.Host, alert.Service)
	}
	if alert.Labels["env"] != "production" {
		t.Errorf("expected label env='production', got %s", alert.Labels["env"])
	}

	// Built alerts do not share the label map
	builder.WithLabel("team", "sre")
	if _, ok := alert.Labels["team"]; ok {
		t.Error("label added after Build leaked into the built alert")
	}
}

func TestReferenceBuilders(t *testing.T) {
	db := NewTestDB(t)
	alice := CreateUser(t, db, "alice")
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	schedule := CreateSchedule(t, db, "primary", from, alice.ID)
	inc := CreateIncident(t, db, "Database outage", database.SeverityCritical, "db", "api")

	var members int64
	db.Model(&database.OnCallMember{}).Where("schedule_id = ?", schedule.ID).Count(&members)
	if members != 1 {
		t.Errorf("expected 1 schedule member, got %d", members)
	}

	var alerts []database.Alert
	if err := db.Where("incident_id = ?", inc.ID).Find(&alerts).Error; err != nil {
		t.Fatalf("failed to load alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Errorf("expected 2 member alerts, got %d", len(alerts))
	}
	if inc.Service != "db" || inc.Status != database.IncidentStatusOpen {
		t.Errorf("unexpected incident %+v", inc)
	}
}

func TestMustCompleteWithin_Success(t *testing.T) {
	mockT := &testing.T{}

	MustCompleteWithin(mockT, time.Second, func() {
		time.Sleep(10 * time.Millisecond)
	})

	if mockT.Failed() {
		t.Error("test should not have failed")
	}
}

func TestConcurrentTest(t *testing.T) {
	var calls, ids int64
	ConcurrentTest(t, 8, func(id int) {
		atomic.AddInt64(&calls, 1)
		atomic.AddInt64(&ids, int64(id))
	})

	if calls != 8 {
		t.Errorf("expected 8 calls, got %d", calls)
	}
	if ids != 28 {
		t.Errorf("expected worker ids 0..7, got sum %d", ids)
	}
}

func BenchmarkAlertBuilder(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewAlertBuilder().
			WithName("HighCPU").
			WithSeverity(database.SeverityCritical).
			WithHost("prod-1").
			WithLabel("env", "prod").
			Build()
	}
}
