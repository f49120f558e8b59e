package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pinksync/internal/automation"
	"pinksync/internal/transport/http/shared"
	dErrors "pinksync/pkg/domain-errors"
)

// WebhooksHandler ingests repository lifecycle events and exposes deployment
// records for polling.
type WebhooksHandler struct {
	pipeline *automation.Pipeline
	logger   *slog.Logger
}

func NewWebhooksHandler(pipeline *automation.Pipeline, logger *slog.Logger) *WebhooksHandler {
	return &WebhooksHandler{pipeline: pipeline, logger: logger}
}

func (h *WebhooksHandler) Register(r chi.Router) {
	r.Post("/webhooks/repository", h.handleLifecycle)
	r.Get("/deployments/{deploymentID}", h.handleGetDeployment)
}

func (h *WebhooksHandler) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	// Repository hosts send far more than the pipeline reads; unknown fields
	// stay with the sender.
	var event automation.LifecycleEvent
	if err := shared.DecodeLenient(r, &event); err != nil {
		shared.WriteError(w, err)
		return
	}

	outcome, err := h.pipeline.Process(r.Context(), event)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Gate rejections are policy outcomes, not errors; the sender gets 200
	// with the verdict either way.
	shared.WriteJSON(w, http.StatusOK, outcome)
}

func (h *WebhooksHandler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "deploymentID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "deployment id must be a UUID"))
		return
	}
	rec, err := h.pipeline.GetDeployment(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}
