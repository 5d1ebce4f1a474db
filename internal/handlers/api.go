package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/akmatori/responder/internal/api"
	"github.com/akmatori/responder/internal/clock"
	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/middleware"
	"github.com/akmatori/responder/internal/services"
	"github.com/akmatori/responder/internal/utils"
)

// IncidentActions is the incident read and action surface
type IncidentActions interface {
	Get(ctx context.Context, incidentUUID string) (*database.Incident, error)
	List(ctx context.Context, status string, offset, limit int) ([]database.Incident, int64, error)
	Acknowledge(ctx context.Context, incidentUUID, actor string) (*database.Incident, error)
	Resolve(ctx context.Context, incidentUUID, actor string) (*database.Incident, error)
	AcknowledgeAlert(ctx context.Context, alertUUID, actor string) (*database.Alert, error)
	ResolveAlert(ctx context.Context, alertUUID, actor string) (*database.Alert, error)
}

// OnCallLookup resolves who is on call for a schedule
type OnCallLookup interface {
	OnCall(ctx context.Context, scheduleID uint, at time.Time) (*services.OnCallResult, error)
}

// APIHandler serves the incident, alert action and schedule endpoints
type APIHandler struct {
	incidents IncidentActions
	schedules OnCallLookup
	clock     clock.Clock
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(incidents IncidentActions, schedules OnCallLookup, clk clock.Clock) *APIHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &APIHandler{
		incidents: incidents,
		schedules: schedules,
		clock:     clk,
	}
}

// SetupRoutes registers the API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Incidents
	mux.HandleFunc("GET /api/v1/incidents", h.handleListIncidents)
	mux.HandleFunc("GET /api/v1/incidents/{id}", h.handleGetIncident)
	mux.HandleFunc("POST /api/v1/incidents/{id}/acknowledge", h.handleAcknowledgeIncident)
	mux.HandleFunc("POST /api/v1/incidents/{id}/resolve", h.handleResolveIncident)

	// Alert actions
	mux.HandleFunc("POST /api/v1/alerts/{id}/acknowledge", h.handleAcknowledgeAlert)
	mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", h.handleResolveAlert)

	// On-call
	mux.HandleFunc("GET /api/v1/schedules/{id}/oncall", h.handleOnCall)
}

// decodeAction reads the optional {"actor": "..."} body
func decodeAction(r *http.Request) (api.ActionRequest, map[string]string, error) {
	var req api.ActionRequest
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return req, nil, nil
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		return req, nil, err
	}
	return req, api.Validate(req), nil
}

// pathUUID reads the {id} path value, answering 400 when it is not a UUID
func pathUUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := utils.ValidateUUID(id); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// respondServiceError maps service sentinels to status codes
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrIncidentNotFound):
		api.RespondError(w, http.StatusNotFound, "Incident not found")
	case errors.Is(err, services.ErrAlertNotFound):
		api.RespondError(w, http.StatusNotFound, "Alert not found")
	case errors.Is(err, services.ErrScheduleNotFound):
		api.RespondError(w, http.StatusNotFound, "Schedule not found")
	case errors.Is(err, services.ErrInvalidTransition):
		api.RespondErrorWithCode(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, services.ErrStoreUnavailable):
		api.RespondErrorWithCode(w, http.StatusServiceUnavailable, "store_unavailable", "Store unavailable, retry later")
	default:
		middleware.Logger(r.Context()).Error("API request failed", zap.String("path", r.URL.Path), zap.Error(err))
		api.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
