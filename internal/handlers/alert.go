package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/akmatori/responder/internal/alerts"
	"github.com/akmatori/responder/internal/api"
	"github.com/akmatori/responder/internal/middleware"
	"github.com/akmatori/responder/internal/services"
)

// Ingester stores one canonical alert
type Ingester interface {
	Ingest(ctx context.Context, in alerts.NormalizedAlert) (*services.IngestResult, error)
}

// AlertHandler accepts alerts from the canonical API and from vendor webhooks
type AlertHandler struct {
	ingester      Ingester
	webhookSecret string

	// Registered adapters by source type
	adapters map[string]alerts.AlertAdapter
}

// NewAlertHandler creates a new alert handler. An empty secret disables the
// webhook secret check.
func NewAlertHandler(ingester Ingester, webhookSecret string) *AlertHandler {
	return &AlertHandler{
		ingester:      ingester,
		webhookSecret: webhookSecret,
		adapters:      make(map[string]alerts.AlertAdapter),
	}
}

// RegisterAdapter registers an alert adapter for a source type
func (h *AlertHandler) RegisterAdapter(adapter alerts.AlertAdapter) {
	h.adapters[adapter.GetSourceType()] = adapter
	zap.L().Info("Registered alert adapter", zap.String("source", adapter.GetSourceType()))
}

// HandleIngest accepts one canonical alert or a batch.
// Route: POST /api/v1/alerts
func (h *AlertHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req api.IngestRequest
	if err := api.DecodeAlertJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errs := api.Validate(req); errs != nil {
		api.RespondValidationError(w, errs)
		return
	}

	items := req.Items()
	batch := make([]alerts.NormalizedAlert, len(items))
	for i, item := range items {
		batch[i] = item.ToNormalized()
	}
	h.ingest(w, r, batch)
}

// HandleWebhook parses a vendor payload with the adapter named in the path.
// Route: POST /webhook/{source}
func (h *AlertHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	adapter, ok := h.adapters[source]
	if !ok {
		api.RespondError(w, http.StatusNotFound, "Unknown alert source: "+source)
		return
	}

	if err := adapter.ValidateWebhookSecret(r, h.webhookSecret); err != nil {
		middleware.Logger(r.Context()).Warn("Webhook secret validation failed", zap.String("source", source), zap.Error(err))
		api.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	body, err := api.ReadBody(r, api.MaxIngestBodySize)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := adapter.ParsePayload(body)
	if err != nil {
		middleware.Logger(r.Context()).Warn("Invalid webhook payload", zap.String("source", source), zap.Error(err))
		api.RespondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	for i := range batch {
		if batch[i].Source == "" {
			batch[i].Source = source
		}
	}

	middleware.Logger(r.Context()).Debug("Received webhook alerts", zap.String("source", source), zap.Int("count", len(batch)))
	h.ingest(w, r, batch)
}

// ingest stores the batch in order. A store failure aborts with 503 so the
// sender retries the whole batch; deduplication absorbs the replays.
func (h *AlertHandler) ingest(w http.ResponseWriter, r *http.Request, batch []alerts.NormalizedAlert) {
	resp := api.IngestResponse{Results: make([]api.IngestResult, 0, len(batch))}
	for _, in := range batch {
		res, err := h.ingester.Ingest(r.Context(), in)
		if err != nil {
			log := middleware.Logger(r.Context())
			if errors.Is(err, services.ErrStoreUnavailable) {
				log.Error("Alert ingest failed, store unavailable", zap.Error(err))
				api.RespondErrorWithCode(w, http.StatusServiceUnavailable, "store_unavailable", "Alert store unavailable, retry later")
				return
			}
			log.Error("Alert ingest failed", zap.Error(err))
			api.RespondError(w, http.StatusInternalServerError, "Failed to ingest alert")
			return
		}
		resp.Results = append(resp.Results, api.IngestResultToResponse(res))
	}
	api.RespondJSON(w, http.StatusAccepted, resp)
}
