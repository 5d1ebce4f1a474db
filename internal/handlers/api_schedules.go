package handlers

import (
	"net/http"
	"strconv"

	"github.com/akmatori/responder/internal/api"
)

// handleOnCall handles GET /api/v1/schedules/{id}/oncall?at=RFC3339
func (h *APIHandler) handleOnCall(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		api.RespondError(w, http.StatusBadRequest, "Invalid schedule id")
		return
	}
	at, err := api.ParseTimeParam(r, "at", h.clock.Now())
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.schedules.OnCall(r.Context(), uint(id), at)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.OnCallToResponse(result, at))
}
