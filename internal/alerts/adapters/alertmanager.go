package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/akmatori/responder/internal/alerts"
)

// AlertmanagerAdapter handles Prometheus Alertmanager webhooks
type AlertmanagerAdapter struct {
	alerts.BaseAdapter
}

// NewAlertmanagerAdapter creates a new Alertmanager adapter
func NewAlertmanagerAdapter() *AlertmanagerAdapter {
	return &AlertmanagerAdapter{
		BaseAdapter: alerts.BaseAdapter{SourceType: "alertmanager"},
	}
}

// AlertmanagerPayload represents the webhook payload from Alertmanager
type AlertmanagerPayload struct {
	Alerts            []AlertmanagerAlert `json:"alerts"`
	Status            string              `json:"status"`
	GroupLabels       map[string]string   `json:"groupLabels"`
	CommonLabels      map[string]string   `json:"commonLabels"`
	CommonAnnotations map[string]string   `json:"commonAnnotations"`
	ExternalURL       string              `json:"externalURL"`
	Version           string              `json:"version"`
	GroupKey          string              `json:"groupKey"`
}

// AlertmanagerAlert represents a single alert in the payload
type AlertmanagerAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

// Labels lifted into first-class fields and removed from the label set
var alertmanagerIdentityLabels = []string{"alertname", "severity", "instance", "job", "service", "environment", "env"}

// ValidateWebhookSecret validates the webhook secret header
func (a *AlertmanagerAdapter) ValidateWebhookSecret(r *http.Request, secret string) error {
	if !alerts.CheckSecret(r, "X-Alertmanager-Secret", secret) {
		return fmt.Errorf("invalid webhook secret")
	}
	return nil
}

// ParsePayload parses Alertmanager webhook payload into normalized alerts
func (a *AlertmanagerAdapter) ParsePayload(body []byte) ([]alerts.NormalizedAlert, error) {
	var payload AlertmanagerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse alertmanager payload: %w", err)
	}

	normalized := make([]alerts.NormalizedAlert, 0, len(payload.Alerts))
	for _, alert := range payload.Alerts {
		normalized = append(normalized, a.parseAlert(alert, payload.CommonAnnotations))
	}
	return normalized, nil
}

func (a *AlertmanagerAdapter) parseAlert(alert AlertmanagerAlert, common map[string]string) alerts.NormalizedAlert {
	service := alert.Labels["service"]
	if service == "" {
		service = alert.Labels["job"]
	}
	env := alert.Labels["environment"]
	if env == "" {
		env = alert.Labels["env"]
	}

	description := alert.Annotations["description"]
	if description == "" {
		description = alert.Annotations["summary"]
	}
	if description == "" {
		description = common["summary"]
	}

	labels := make(map[string]string, len(alert.Labels))
	for k, v := range alert.Labels {
		labels[k] = v
	}
	for _, k := range alertmanagerIdentityLabels {
		delete(labels, k)
	}

	annotations := make(map[string]string, len(alert.Annotations))
	for k, v := range alert.Annotations {
		annotations[k] = v
	}

	// Parse times
	var startsAt, endsAt *time.Time
	if !alert.StartsAt.IsZero() {
		t := alert.StartsAt.UTC()
		startsAt = &t
	}
	status := alerts.NormalizeStatus(alert.Status)
	if !alert.EndsAt.IsZero() && strings.EqualFold(alert.Status, "resolved") {
		t := alert.EndsAt.UTC()
		endsAt = &t
	}

	return alerts.NormalizedAlert{
		Name:         alert.Labels["alertname"],
		Source:       a.SourceType,
		Service:      service,
		Host:         alert.Labels["instance"],
		Environment:  env,
		Severity:     alerts.NormalizeSeverity(alert.Labels["severity"]),
		Status:       status,
		Description:  description,
		Labels:       labels,
		Annotations:  annotations,
		GeneratorURL: alert.GeneratorURL,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
	}
}
