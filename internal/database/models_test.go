package database

import (
	"strings"
	"testing"
	"time"
)

func TestJSONB_Scan(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		wantErr bool
	}{
		{
			name:    "nil value",
			input:   nil,
			wantErr: false,
		},
		{
			name:    "valid JSON",
			input:   []byte(`{"key": "value"}`),
			wantErr: false,
		},
		{
			name:    "valid JSON as string",
			input:   `{"key": "value"}`,
			wantErr: false,
		},
		{
			name:    "invalid JSON",
			input:   []byte(`not json`),
			wantErr: true,
		},
		{
			name:    "wrong type",
			input:   42,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JSONB
			err := j.Scan(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Scan() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJSONB_Value(t *testing.T) {
	tests := []struct {
		name    string
		jsonb   JSONB
		wantNil bool
	}{
		{
			name:    "nil JSONB",
			jsonb:   nil,
			wantNil: true,
		},
		{
			name:    "empty JSONB",
			jsonb:   JSONB{},
			wantNil: false,
		},
		{
			name:    "populated JSONB",
			jsonb:   JSONB{"key": "value"},
			wantNil: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := tt.jsonb.Value()
			if err != nil {
				t.Errorf("Value() error = %v", err)
			}
			if tt.wantNil && value != nil {
				t.Errorf("Value() = %v, want nil", value)
			}
			if !tt.wantNil && value == nil {
				t.Error("Value() = nil, want non-nil")
			}
		})
	}
}

func TestStringMap_NilValueIsEmptyObject(t *testing.T) {
	var m StringMap
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}
	if string(v.([]byte)) != "{}" {
		t.Errorf("Value() = %s, want {}", v)
	}

	var back StringMap
	if err := back.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if back == nil || len(back) != 0 {
		t.Errorf("expected empty non-nil map, got %#v", back)
	}
}

func TestSeverity_Rank(t *testing.T) {
	ordered := []Severity{SeverityInfo, SeverityLow, SeverityWarning, SeverityHigh, SeverityCritical}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", ordered[i], ordered[i-1])
		}
	}

	if Severity("bogus").IsValid() {
		t.Error("expected unknown severity to be invalid")
	}
	if MaxSeverity(SeverityLow, SeverityHigh) != SeverityHigh {
		t.Error("expected high to win over low")
	}
	if MaxSeverity(SeverityCritical, SeverityWarning) != SeverityCritical {
		t.Error("expected critical to win over warning")
	}
}

func TestGetSeverityEmoji(t *testing.T) {
	tests := []struct {
		severity Severity
		expected string
	}{
		{SeverityCritical, ":red_circle:"},
		{SeverityHigh, ":large_orange_circle:"},
		{SeverityWarning, ":large_yellow_circle:"},
		{SeverityLow, ":large_blue_circle:"},
		{Severity("unknown"), ":white_circle:"},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			if got := GetSeverityEmoji(tt.severity); got != tt.expected {
				t.Errorf("GetSeverityEmoji(%s) = %s, want %s", tt.severity, got, tt.expected)
			}
		})
	}
}

func TestSilenceWindow_CoversTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	tests := []struct {
		name     string
		window   SilenceWindow
		now      time.Time
		expected bool
	}{
		{"inside", SilenceWindow{IsActive: true, StartsAt: start, EndsAt: end}, start.Add(time.Hour), true},
		{"at start", SilenceWindow{IsActive: true, StartsAt: start, EndsAt: end}, start, true},
		{"at end", SilenceWindow{IsActive: true, StartsAt: start, EndsAt: end}, end, true},
		{"before", SilenceWindow{IsActive: true, StartsAt: start, EndsAt: end}, start.Add(-time.Second), false},
		{"after", SilenceWindow{IsActive: true, StartsAt: start, EndsAt: end}, end.Add(time.Second), false},
		{"disabled", SilenceWindow{IsActive: false, StartsAt: start, EndsAt: end}, start.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.CoversTime(tt.now); got != tt.expected {
				t.Errorf("CoversTime() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEscalationPolicy_Level(t *testing.T) {
	p := EscalationPolicy{Levels: EscalationLevels{
		{Level: 1, TimeoutMinutes: 5},
		{Level: 2, TimeoutMinutes: 0},
		{Level: 3, TimeoutMinutes: 5000},
	}}

	if _, ok := p.Level(0); ok {
		t.Error("expected level 0 to be out of range")
	}
	if _, ok := p.Level(4); ok {
		t.Error("expected level 4 to be out of range")
	}

	l1, _ := p.Level(1)
	if l1.Timeout() != 5*time.Minute {
		t.Errorf("expected 5m, got %v", l1.Timeout())
	}
	l2, _ := p.Level(2)
	if l2.Timeout() != time.Minute {
		t.Errorf("expected timeout clamped to 1m, got %v", l2.Timeout())
	}
	l3, _ := p.Level(3)
	if l3.Timeout() != 1440*time.Minute {
		t.Errorf("expected timeout clamped to 1440m, got %v", l3.Timeout())
	}
}

func TestTruncateError(t *testing.T) {
	short := "connection refused"
	if TruncateError(short) != short {
		t.Errorf("expected short message unchanged")
	}

	long := strings.Repeat("x", 600)
	if got := TruncateError(long); len(got) != MaxErrorMessageLength {
		t.Errorf("expected %d bytes, got %d", MaxErrorMessageLength, len(got))
	}

	// 499 ASCII bytes followed by a 3-byte rune straddling the limit
	multi := strings.Repeat("a", 499) + "€" + "tail"
	got := TruncateError(multi)
	if len(got) != 499 {
		t.Errorf("expected cut before the multi-byte rune, got %d bytes", len(got))
	}
}

func TestIncident_Services(t *testing.T) {
	inc := Incident{Alerts: []Alert{
		{Service: "payment-api"},
		{Service: ""},
		{Service: "payment-api"},
		{Service: "auth-service"},
	}}

	services := inc.Services()
	if len(services) != 2 {
		t.Fatalf("expected 2 distinct services, got %v", services)
	}
	if services[0] != "payment-api" || services[1] != "auth-service" {
		t.Errorf("unexpected service order: %v", services)
	}
}

func TestTableNames(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{Alert{}.TableName(), "alerts"},
		{AlertOccurrence{}.TableName(), "alert_occurrences"},
		{Incident{}.TableName(), "incidents"},
		{IncidentEvent{}.TableName(), "incident_events"},
		{SilenceWindow{}.TableName(), "silence_windows"},
		{EscalationPolicy{}.TableName(), "escalation_policies"},
		{ServiceMapping{}.TableName(), "service_mappings"},
		{EscalationState{}.TableName(), "escalation_states"},
		{OnCallSchedule{}.TableName(), "oncall_schedules"},
		{NotificationChannel{}.TableName(), "notification_channels"},
		{NotificationLog{}.TableName(), "notification_logs"},
		{EngineSettings{}.TableName(), "engine_settings"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected table name '%s', got '%s'", tt.want, tt.got)
		}
	}
}
