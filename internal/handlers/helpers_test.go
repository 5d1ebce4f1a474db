package handlers

import (
	"net/http"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/alerts/adapters"
	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/config"
	"github.com/akmatori/responder/internal/services"
	"github.com/akmatori/responder/internal/testhelpers"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// testServer is the full route table over an in-memory store
type testServer struct {
	db     *gorm.DB
	clock  *clock.Fake
	mux    *http.ServeMux
	alerts *AlertHandler
}

func newTestServer(t *testing.T, webhookSecret string) *testServer {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	clk := clock.NewFake(testNow)
	windows := config.DefaultWindows()

	escalation := services.NewEscalationService(db, clk, nil, nil)
	correlation := services.NewCorrelationService(db, windows, clk, escalation, nil, nil, nil)
	dedup := services.NewDedupService(db, windows, clk, services.NewSilenceService(db), correlation)
	incidents := services.NewIncidentService(db, clk, correlation, escalation, nil, nil, nil)

	alertHandler := NewAlertHandler(dedup, webhookSecret)
	alertHandler.RegisterAdapter(adapters.NewAlertmanagerAdapter())
	alertHandler.RegisterAdapter(adapters.NewGrafanaAdapter())

	apiHandler := NewAPIHandler(incidents, services.NewScheduleService(db), clk)

	mux := http.NewServeMux()
	NewHTTPHandler(db, alertHandler, apiHandler).SetupRoutes(mux)
	return &testServer{db: db, clock: clk, mux: mux, alerts: alertHandler}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *testhelpers.HTTPTestContext {
	t.Helper()
	ctx := testhelpers.NewHTTPTestContext(t, method, path, nil)
	if body != nil {
		ctx.WithJSONBody(body)
	}
	return ctx.Execute(s.mux)
}
