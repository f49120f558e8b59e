// Package http assembles the broker's HTTP surface.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pinksync/internal/broker"
	"pinksync/internal/contract"
	"pinksync/internal/transport/http/shared"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// EventsHandler serves the event intake surface.
type EventsHandler struct {
	broker *broker.Service
	logger *slog.Logger
}

func NewEventsHandler(b *broker.Service, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{broker: b, logger: logger}
}

func (h *EventsHandler) Register(r chi.Router) {
	r.Post("/events", h.handleSubmit)
	r.Post("/events/batch", h.handleSubmitBatch)
	r.Get("/events/types", h.handleEventTypes)
}

func (h *EventsHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub contract.Submission
	if err := shared.Decode(r, &sub); err != nil {
		shared.WriteError(w, err)
		return
	}

	receipt, err := h.broker.Accept(r.Context(), sub)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, receiptStatus(receipt), receipt)
}

type batchRequest struct {
	Events []contract.Submission `json:"events"`
}

type batchResponse struct {
	Receipts []broker.Receipt `json:"receipts"`
	Accepted int              `json:"accepted"`
	Rejected int              `json:"rejected"`
}

func (h *EventsHandler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if len(req.Events) == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "events cannot be empty"))
		return
	}

	receipts, err := h.broker.SubmitBatch(r.Context(), req.Events)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	resp := batchResponse{Receipts: receipts}
	for _, rec := range receipts {
		if rec.Status == broker.StatusAccepted {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
	}
	// A batch can carry mixed outcomes; the per-receipt status decides.
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *EventsHandler) handleEventTypes(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string][]domain.Intent{"intents": domain.Intents()})
}

// receiptStatus maps one receipt onto its HTTP status: 201 on acceptance,
// the violation's taxonomy code otherwise.
func receiptStatus(receipt *broker.Receipt) int {
	if receipt.Status == broker.StatusAccepted {
		return http.StatusCreated
	}
	if receipt.Violation != nil {
		switch receipt.Violation.DomainCode() {
		case dErrors.CodeConflict:
			return http.StatusConflict
		default:
			return http.StatusBadRequest
		}
	}
	return http.StatusBadRequest
}
