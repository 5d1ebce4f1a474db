package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, http.StatusAccepted, IngestResponse{Results: []IngestResult{{AlertID: "a-1", IsNew: true}}})

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	want := `{"results":[{"alert_id":"a-1","is_new":true,"suppressed":false,"incident_id":null}]}` + "\n"
	if got := w.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestRespondJSON_NilBody(t *testing.T) {
	w := httptest.NewRecorder()
	RespondJSON(w, http.StatusOK, nil)

	if w.Body.Len() != 0 {
		t.Errorf("body length = %d, want 0", w.Body.Len())
	}
}

func TestRespondErrors(t *testing.T) {
	tests := []struct {
		name       string
		respond    func(w http.ResponseWriter)
		wantStatus int
		wantError  string
		wantCode   string
	}{
		{
			name:       "plain",
			respond:    func(w http.ResponseWriter) { RespondError(w, http.StatusNotFound, "Incident not found") },
			wantStatus: http.StatusNotFound,
			wantError:  "Incident not found",
		},
		{
			name: "with code",
			respond: func(w http.ResponseWriter) {
				RespondErrorWithCode(w, http.StatusServiceUnavailable, "store_unavailable", "Store unavailable, retry later")
			},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "Store unavailable, retry later",
			wantCode:   "store_unavailable",
		},
		{
			name: "validation",
			respond: func(w http.ResponseWriter) {
				RespondValidationError(w, map[string]string{"alerts[0].name": "is required"})
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "Validation failed",
			wantCode:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.respond(w)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestRespondValidationError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	RespondValidationError(w, map[string]string{"actor": "must be at most 128 characters"})

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Details["actor"] != "must be at most 128 characters" {
		t.Errorf("details = %v", resp.Details)
	}
}

func TestRespondPage(t *testing.T) {
	w := httptest.NewRecorder()
	RespondPage(w, []IncidentListItem{{ID: "i-1"}}, PaginationParams{Page: 1, PerPage: 1}, 3)

	var resp struct {
		Data       []IncidentListItem `json:"data"`
		Pagination PaginationMeta     `json:"pagination"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "i-1" {
		t.Errorf("data = %+v", resp.Data)
	}
	if resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 3 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}
}

func TestErrorResponse_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(ErrorResponse{Error: "not found"})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if string(data) != `{"error":"not found"}` {
		t.Errorf("json = %s", data)
	}
}
