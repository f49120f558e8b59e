package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pinksync/internal/platform/middleware"
	"pinksync/internal/subscription"
	"pinksync/internal/transport/http/shared"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// SubscriptionsHandler serves the consumer subscription surface. The consumer
// identity comes from the authenticated token subject, never the body.
type SubscriptionsHandler struct {
	subscriptions *subscription.Service
	logger        *slog.Logger
}

func NewSubscriptionsHandler(svc *subscription.Service, logger *slog.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{subscriptions: svc, logger: logger}
}

func (h *SubscriptionsHandler) Register(r chi.Router) {
	r.Post("/subscriptions", h.handleSubscribe)
	r.Get("/subscriptions", h.handleList)
	r.Delete("/subscriptions/{subscriptionID}", h.handleCancel)
}

type subscribeRequest struct {
	Endpoint   string              `json:"endpoint,omitempty"`
	Filter     subscription.Filter `json:"filter"`
	TTLSeconds int64               `json:"ttl_seconds,omitempty"`
}

func (h *SubscriptionsHandler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	consumerID, err := consumerFromContext(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req subscribeRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	sub, err := h.subscriptions.Subscribe(r.Context(), consumerID, req.Endpoint, req.Filter,
		time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	consumerID, err := consumerFromContext(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	subs := h.subscriptions.List(r.Context(), consumerID)
	shared.WriteJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (h *SubscriptionsHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	consumerID, err := consumerFromContext(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	subID, err := uuid.Parse(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "subscription id must be a UUID"))
		return
	}
	if err := h.subscriptions.Cancel(r.Context(), consumerID, subID); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusNoContent, nil)
}

func consumerFromContext(r *http.Request) (domain.ConsumerID, error) {
	subject := middleware.GetSubject(r.Context())
	if subject == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing authenticated subject")
	}
	return domain.ParseConsumerID(subject)
}
