package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akmatori/responder/internal/alerts"
	"github.com/akmatori/responder/internal/api"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/services"
	"github.com/akmatori/responder/internal/testhelpers"
)

func TestIngest_SingleAlert(t *testing.T) {
	s := newTestServer(t, "")

	var resp api.IngestResponse
	s.do(t, http.MethodPost, "/api/v1/alerts", map[string]interface{}{
		"name":     "HighErrorRate",
		"service":  "payment-api",
		"severity": "critical",
	}).AssertStatus(http.StatusAccepted).DecodeJSON(&resp)

	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].IsNew)
	assert.False(t, resp.Results[0].Suppressed)
	assert.NotEmpty(t, resp.Results[0].AlertID)
	require.NotNil(t, resp.Results[0].IncidentID)
}

func TestIngest_DuplicateJoinsSameIncident(t *testing.T) {
	s := newTestServer(t, "")
	body := map[string]interface{}{"name": "HighErrorRate", "service": "payment-api"}

	var first, second api.IngestResponse
	s.do(t, http.MethodPost, "/api/v1/alerts", body).AssertStatus(http.StatusAccepted).DecodeJSON(&first)
	s.do(t, http.MethodPost, "/api/v1/alerts", body).AssertStatus(http.StatusAccepted).DecodeJSON(&second)

	assert.False(t, second.Results[0].IsNew)
	assert.Equal(t, first.Results[0].AlertID, second.Results[0].AlertID)
	require.NotNil(t, second.Results[0].IncidentID)
	assert.Equal(t, *first.Results[0].IncidentID, *second.Results[0].IncidentID)

	var alert database.Alert
	require.NoError(t, s.db.Where("uuid = ?", first.Results[0].AlertID).First(&alert).Error)
	assert.Equal(t, 2, alert.DuplicateCount)
}

func TestIngest_Batch(t *testing.T) {
	s := newTestServer(t, "")

	var resp api.IngestResponse
	s.do(t, http.MethodPost, "/api/v1/alerts", map[string]interface{}{
		"alerts": []map[string]interface{}{
			{"name": "HighErrorRate", "service": "payment-api"},
			{"name": "HighLatency", "service": "payment-api"},
			{"name": "DiskFull", "service": "auth-service"},
		},
	}).AssertStatus(http.StatusAccepted).DecodeJSON(&resp)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, *resp.Results[0].IncidentID, *resp.Results[1].IncidentID)
	assert.NotEqual(t, *resp.Results[0].IncidentID, *resp.Results[2].IncidentID)
}

func TestIngest_SuppressedBySilence(t *testing.T) {
	s := newTestServer(t, "")
	testhelpers.CreateSilence(t, s.db, database.SilenceMatchers{Service: []string{"payment-api"}},
		testNow.Add(-time.Hour), testNow.Add(time.Hour))

	var resp api.IngestResponse
	s.do(t, http.MethodPost, "/api/v1/alerts", map[string]interface{}{"name": "HighErrorRate", "service": "payment-api"}).
		AssertStatus(http.StatusAccepted).DecodeJSON(&resp)

	assert.True(t, resp.Results[0].Suppressed)
	assert.Nil(t, resp.Results[0].IncidentID)
}

func TestIngest_MalformedJSON(t *testing.T) {
	s := newTestServer(t, "")

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/v1/alerts", nil).
		WithRawBody([]byte(`{"name": `)).
		Execute(s.mux).
		AssertStatus(http.StatusBadRequest).
		AssertBodyContains("malformed JSON")
}

func TestIngest_ValidationFailure(t *testing.T) {
	s := newTestServer(t, "")

	s.do(t, http.MethodPost, "/api/v1/alerts", map[string]interface{}{
		"alerts": []map[string]interface{}{
			{"name": strings.Repeat("x", 300)},
		},
	}).AssertStatus(http.StatusUnprocessableEntity).AssertBodyContains("alerts[0].name")
}

func TestIngest_MalformedFieldsAreNormalized(t *testing.T) {
	s := newTestServer(t, "")

	var resp api.IngestResponse
	s.do(t, http.MethodPost, "/api/v1/alerts", map[string]interface{}{
		"severity": "apocalyptic",
		"status":   "weird",
	}).AssertStatus(http.StatusAccepted).DecodeJSON(&resp)

	var alert database.Alert
	require.NoError(t, s.db.Where("uuid = ?", resp.Results[0].AlertID).First(&alert).Error)
	assert.Equal(t, "unknown", alert.Name)
	assert.Equal(t, database.SeverityWarning, alert.Severity)
	assert.Equal(t, database.AlertStatusFiring, alert.Status)
}

type failingIngester struct {
	err error
}

func (f failingIngester) Ingest(ctx context.Context, in alerts.NormalizedAlert) (*services.IngestResult, error) {
	return nil, f.err
}

func TestIngest_StoreUnavailableReturns503(t *testing.T) {
	h := NewAlertHandler(failingIngester{err: fmt.Errorf("failed to ingest alert: %w", services.ErrStoreUnavailable)}, "")
	mux := http.NewServeMux()
	NewHTTPHandler(nil, h, nil).SetupRoutes(mux)

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/v1/alerts", nil).
		WithJSONBody(map[string]string{"name": "HighErrorRate"}).
		Execute(mux).
		AssertStatus(http.StatusServiceUnavailable).
		AssertBodyContains("store_unavailable")
}

func TestIngest_UnexpectedErrorReturns500(t *testing.T) {
	h := NewAlertHandler(failingIngester{err: errors.New("boom")}, "")
	mux := http.NewServeMux()
	NewHTTPHandler(nil, h, nil).SetupRoutes(mux)

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/v1/alerts", nil).
		WithJSONBody(map[string]string{"name": "HighErrorRate"}).
		Execute(mux).
		AssertStatus(http.StatusInternalServerError)
}

func TestWebhook_UnknownSource(t *testing.T) {
	s := newTestServer(t, "")

	s.do(t, http.MethodPost, "/webhook/nagios", map[string]string{}).
		AssertStatus(http.StatusNotFound)
}

const alertmanagerPayload = `{
  "version": "4",
  "status": "firing",
  "receiver": "responder",
  "alerts": [
    {
      "status": "firing",
      "labels": {"alertname": "HighErrorRate", "service": "payment-api", "severity": "critical", "instance": "web-1"},
      "annotations": {"summary": "5xx above 5%"},
      "startsAt": "2026-03-02T09:58:00Z",
      "fingerprint": "a1b2"
    },
    {
      "status": "firing",
      "labels": {"alertname": "HighLatency", "service": "payment-api", "severity": "warning", "instance": "web-1"},
      "startsAt": "2026-03-02T09:59:00Z"
    }
  ]
}`

func TestWebhook_Alertmanager(t *testing.T) {
	s := newTestServer(t, "")

	var resp api.IngestResponse
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/webhook/alertmanager", nil).
		WithRawBody([]byte(alertmanagerPayload)).
		Execute(s.mux).
		AssertStatus(http.StatusAccepted).
		DecodeJSON(&resp)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, *resp.Results[0].IncidentID, *resp.Results[1].IncidentID)

	var inc database.Incident
	require.NoError(t, s.db.Where("uuid = ?", *resp.Results[0].IncidentID).First(&inc).Error)
	assert.Equal(t, database.SeverityCritical, inc.Severity)
	assert.Equal(t, 2, inc.AlertCount)
}

func TestWebhook_SecretRequired(t *testing.T) {
	s := newTestServer(t, "s3cret")

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/webhook/alertmanager", nil).
		WithRawBody([]byte(alertmanagerPayload)).
		Execute(s.mux).
		AssertStatus(http.StatusUnauthorized)

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/webhook/alertmanager", nil).
		WithHeader("X-Alertmanager-Secret", "s3cret").
		WithRawBody([]byte(alertmanagerPayload)).
		Execute(s.mux).
		AssertStatus(http.StatusAccepted)
}

func TestWebhook_InvalidPayload(t *testing.T) {
	s := newTestServer(t, "")

	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/webhook/alertmanager", nil).
		WithRawBody([]byte(`not json`)).
		Execute(s.mux).
		AssertStatus(http.StatusBadRequest)
}

func TestWebhook_MockAdapterFillsSource(t *testing.T) {
	s := newTestServer(t, "")
	mock := testhelpers.NewMockAlertAdapter("datadog").
		WithAlerts(testhelpers.NewAlertBuilder().WithSource("").WithService("checkout").Build())
	s.alerts.RegisterAdapter(mock)

	var resp api.IngestResponse
	s.do(t, http.MethodPost, "/webhook/datadog", map[string]string{"any": "thing"}).
		AssertStatus(http.StatusAccepted).
		DecodeJSON(&resp)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, mock.ParseCalls)

	var alert database.Alert
	require.NoError(t, s.db.Where("uuid = ?", resp.Results[0].AlertID).First(&alert).Error)
	assert.Equal(t, "datadog", alert.Source)
}

func TestWebhook_ValidationErrorFromAdapter(t *testing.T) {
	s := newTestServer(t, "")
	s.alerts.RegisterAdapter(testhelpers.NewMockAlertAdapter("datadog").WithValidationError(errors.New("bad signature")))

	s.do(t, http.MethodPost, "/webhook/datadog", map[string]string{}).
		AssertStatus(http.StatusUnauthorized)
}

func TestAlertHandler_RegisterAdapter_Idempotent(t *testing.T) {
	h := NewAlertHandler(nil, "")
	adapter := testhelpers.NewMockAlertAdapter("prometheus")

	h.RegisterAdapter(adapter)
	h.RegisterAdapter(adapter)

	assert.Len(t, h.adapters, 1)
}
