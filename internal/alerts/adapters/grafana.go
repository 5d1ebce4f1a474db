package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/akmatori/responder/internal/alerts"
	"github.com/akmatori/responder/internal/database"
)

// GrafanaAdapter handles Grafana alerting webhooks
type GrafanaAdapter struct {
	alerts.BaseAdapter
}

// NewGrafanaAdapter creates a new Grafana adapter
func NewGrafanaAdapter() *GrafanaAdapter {
	return &GrafanaAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "grafana"},
	}
}

// GrafanaPayload represents the webhook payload from Grafana
// Supports both legacy alerting and Grafana Alerting (unified alerting)
type GrafanaPayload struct {
	// Unified Alerting format
	Receiver          string            `json:"receiver"`
	Status            string            `json:"status"`
	Alerts            []GrafanaAlert    `json:"alerts"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`

	// Legacy alerting format
	RuleName    string `json:"ruleName"`
	State       string `json:"state"`
	Message     string `json:"message"`
	RuleURL     string `json:"ruleUrl"`
	RuleID      int    `json:"ruleId"`
	Title       string `json:"title"`
	EvalMatches []struct {
		Value  float64           `json:"value"`
		Metric string            `json:"metric"`
		Tags   map[string]string `json:"tags"`
	} `json:"evalMatches"`
}

// GrafanaAlert represents a single alert in unified alerting
type GrafanaAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
	Fingerprint  string            `json:"fingerprint"`
	GeneratorURL string            `json:"generatorURL"`
	DashboardURL string            `json:"dashboardURL"`
	PanelURL     string            `json:"panelURL"`
	ValueString  string            `json:"valueString"`
}

// Grafana uses this for "no end time"
const grafanaZeroTime = "0001-01-01T00:00:00Z"

var (
	grafanaSeverityKeys    = []string{"severity", "priority", "level"}
	grafanaServiceKeys     = []string{"service", "app", "application", "job", "namespace"}
	grafanaHostKeys        = []string{"instance", "node", "host"}
	grafanaEnvironmentKeys = []string{"environment", "env", "tier", "stage"}
)

// ValidateWebhookSecret validates the Grafana webhook secret header
func (a *GrafanaAdapter) ValidateWebhookSecret(r *http.Request, secret string) error {
	if !alerts.CheckSecret(r, "X-Grafana-Secret", secret) {
		return fmt.Errorf("invalid webhook secret")
	}
	return nil
}

// ParsePayload parses Grafana webhook payload into normalized alerts
func (a *GrafanaAdapter) ParsePayload(body []byte) ([]alerts.NormalizedAlert, error) {
	var payload GrafanaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse grafana payload: %w", err)
	}

	// Check if this is unified alerting (has alerts array) or legacy
	if len(payload.Alerts) > 0 {
		normalized := make([]alerts.NormalizedAlert, 0, len(payload.Alerts))
		for _, alert := range payload.Alerts {
			normalized = append(normalized, a.parseUnifiedAlert(alert, payload.CommonAnnotations))
		}
		return normalized, nil
	}
	if payload.RuleName == "" && payload.Title == "" {
		return []alerts.NormalizedAlert{}, nil
	}
	return []alerts.NormalizedAlert{a.parseLegacyAlert(payload)}, nil
}

func (a *GrafanaAdapter) parseUnifiedAlert(alert GrafanaAlert, common map[string]string) alerts.NormalizedAlert {
	labels := make(map[string]string, len(alert.Labels))
	for k, v := range alert.Labels {
		labels[k] = v
	}
	annotations := make(map[string]string, len(alert.Annotations)+1)
	for k, v := range alert.Annotations {
		annotations[k] = v
	}
	if alert.ValueString != "" {
		annotations["value_string"] = alert.ValueString
	}

	name := popLabel(labels, "alertname")
	if name == "" {
		name = "Grafana Alert"
	}
	severity := popFirst(labels, grafanaSeverityKeys)
	service := popFirst(labels, grafanaServiceKeys)
	host := popFirst(labels, grafanaHostKeys)
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	env := popFirst(labels, grafanaEnvironmentKeys)

	description := alert.Annotations["description"]
	if description == "" {
		description = alert.Annotations["summary"]
	}
	if description == "" {
		description = common["summary"]
	}

	url := alert.DashboardURL
	if url == "" {
		url = alert.PanelURL
	}
	if url == "" {
		url = alert.GeneratorURL
	}

	status := alerts.NormalizeStatus(alert.Status)
	var endsAt *time.Time
	if status == database.AlertStatusResolved {
		endsAt = parseGrafanaTime(alert.EndsAt)
	}

	return alerts.NormalizedAlert{
		Name:         name,
		Source:       a.SourceType,
		Service:      service,
		Host:         host,
		Environment:  env,
		Severity:     alerts.NormalizeSeverity(severity),
		Status:       status,
		Description:  description,
		Labels:       labels,
		Annotations:  annotations,
		GeneratorURL: url,
		StartsAt:     parseGrafanaTime(alert.StartsAt),
		EndsAt:       endsAt,
	}
}

func (a *GrafanaAdapter) parseLegacyAlert(payload GrafanaPayload) alerts.NormalizedAlert {
	// Map state to status
	status := database.AlertStatusFiring
	state := strings.ToLower(payload.State)
	if state == "ok" || state == "no_data" || state == "paused" {
		status = database.AlertStatusResolved
	}

	// Extract target host from evalMatches
	var host string
	labels := make(map[string]string)
	annotations := make(map[string]string)
	if len(payload.EvalMatches) > 0 {
		match := payload.EvalMatches[0]
		annotations["value_string"] = fmt.Sprintf("%s=%v", match.Metric, match.Value)
		for k, v := range match.Tags {
			labels[k] = v
		}
		host = popFirst(labels, grafanaHostKeys)
		if i := strings.LastIndex(host, ":"); i > 0 {
			host = host[:i]
		}
	}

	name := payload.RuleName
	if name == "" {
		name = payload.Title
	}

	return alerts.NormalizedAlert{
		Name:         name,
		Source:       a.SourceType,
		Host:         host,
		Severity:     a.mapStateToSeverity(payload.State),
		Status:       status,
		Description:  payload.Message,
		Labels:       labels,
		Annotations:  annotations,
		GeneratorURL: payload.RuleURL,
	}
}

// mapStateToSeverity maps Grafana legacy state to normalized severity
func (a *GrafanaAdapter) mapStateToSeverity(state string) database.Severity {
	switch strings.ToLower(state) {
	case "alerting":
		return database.SeverityCritical
	case "pending":
		return database.SeverityWarning
	case "no_data", "ok", "paused":
		return database.SeverityInfo
	default:
		return database.SeverityWarning
	}
}

func parseGrafanaTime(s string) *time.Time {
	if s == "" || s == grafanaZeroTime {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil || t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func popLabel(labels map[string]string, key string) string {
	v := labels[key]
	delete(labels, key)
	return v
}

// popFirst returns the first non-empty value among keys and removes all of them
func popFirst(labels map[string]string, keys []string) string {
	var found string
	for _, k := range keys {
		if v := labels[k]; v != "" && found == "" {
			found = v
		}
		delete(labels, k)
	}
	return found
}
