package handlers

import (
	"net/http"

	"github.com/akmatori/responder/internal/api"
	"github.com/akmatori/responder/internal/database"
)

var incidentStatuses = map[string]bool{
	string(database.IncidentStatusOpen):         true,
	string(database.IncidentStatusAcknowledged): true,
	string(database.IncidentStatusResolved):     true,
}

// handleListIncidents handles GET /api/v1/incidents?status=&page=&per_page=
func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !incidentStatuses[status] {
		api.RespondError(w, http.StatusBadRequest, "status must be one of: open, acknowledged, resolved")
		return
	}

	params := api.ParsePagination(r)
	incidents, total, err := h.incidents.List(r.Context(), status, params.Offset(), params.PerPage)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	api.RespondPage(w, api.IncidentsToListItems(incidents), params, total)
}

// handleGetIncident handles GET /api/v1/incidents/{id}
func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	inc, err := h.incidents.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentToDetail(*inc))
}

// handleAcknowledgeIncident handles POST /api/v1/incidents/{id}/acknowledge
func (h *APIHandler) handleAcknowledgeIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	req, fieldErrs, err := decodeAction(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrs != nil {
		api.RespondValidationError(w, fieldErrs)
		return
	}

	inc, err := h.incidents.Acknowledge(r.Context(), id, req.Actor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentToListItem(*inc))
}

// handleResolveIncident handles POST /api/v1/incidents/{id}/resolve
func (h *APIHandler) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	req, fieldErrs, err := decodeAction(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrs != nil {
		api.RespondValidationError(w, fieldErrs)
		return
	}

	inc, err := h.incidents.Resolve(r.Context(), id, req.Actor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentToListItem(*inc))
}

// handleAcknowledgeAlert handles POST /api/v1/alerts/{id}/acknowledge
func (h *APIHandler) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	req, fieldErrs, err := decodeAction(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrs != nil {
		api.RespondValidationError(w, fieldErrs)
		return
	}

	alert, err := h.incidents.AcknowledgeAlert(r.Context(), id, req.Actor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.AlertToItem(*alert))
}

// handleResolveAlert handles POST /api/v1/alerts/{id}/resolve
func (h *APIHandler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	req, fieldErrs, err := decodeAction(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrs != nil {
		api.RespondValidationError(w, fieldErrs)
		return
	}

	alert, err := h.incidents.ResolveAlert(r.Context(), id, req.Actor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.AlertToItem(*alert))
}
