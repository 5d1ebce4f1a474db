package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/akmatori/responder/internal/api"
)

const healthTimeout = 2 * time.Second

// HTTPHandler owns the top-level routes and mounts the feature handlers
type HTTPHandler struct {
	db           *gorm.DB
	alertHandler *AlertHandler
	apiHandler   *APIHandler
}

// NewHTTPHandler creates a new HTTP handler. Nil feature handlers are not mounted.
func NewHTTPHandler(db *gorm.DB, alertHandler *AlertHandler, apiHandler *APIHandler) *HTTPHandler {
	return &HTTPHandler{
		db:           db,
		alertHandler: alertHandler,
		apiHandler:   apiHandler,
	}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	if h.alertHandler != nil {
		mux.HandleFunc("POST /api/v1/alerts", h.alertHandler.HandleIngest)
		mux.HandleFunc("POST /webhook/{source}", h.alertHandler.HandleWebhook)
	}
	if h.apiHandler != nil {
		h.apiHandler.SetupRoutes(mux)
	}
}

// handleHealth reports liveness and whether the store answers
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	response := map[string]string{
		"status":   "ok",
		"database": "ok",
	}
	if h.db != nil {
		if err := ping(r.Context(), h.db); err != nil {
			response["status"] = "degraded"
			response["database"] = err.Error()
			api.RespondJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	} else {
		response["database"] = "not configured"
	}
	api.RespondJSON(w, http.StatusOK, response)
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
