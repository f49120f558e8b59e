package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pinksync/internal/platform/metrics"
	"pinksync/internal/transport/http/shared"
	"pinksync/internal/trust"
)

// TrustHandler serves developer identity registration and contribution
// scoring.
type TrustHandler struct {
	trust   *trust.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewTrustHandler(svc *trust.Service, m *metrics.Metrics, logger *slog.Logger) *TrustHandler {
	return &TrustHandler{trust: svc, metrics: m, logger: logger}
}

func (h *TrustHandler) Register(r chi.Router) {
	r.Post("/identities", h.handleRegister)
	r.Get("/identities/{uid}", h.handleResolve)
	r.Post("/identities/{uid}/contributions", h.handleContribution)
}

type registerIdentityRequest struct {
	UID string `json:"uid"`
}

func (h *TrustHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerIdentityRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	identity, err := h.trust.Register(r.Context(), req.UID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, identity)
}

func (h *TrustHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	identity, err := h.trust.Resolve(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, identity)
}

func (h *TrustHandler) handleContribution(w http.ResponseWriter, r *http.Request) {
	var contribution trust.Contribution
	if err := shared.Decode(r, &contribution); err != nil {
		shared.WriteError(w, err)
		return
	}
	identity, err := h.trust.Update(r.Context(), chi.URLParam(r, "uid"), contribution)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.TrustUpdates.Inc()
	}
	shared.WriteJSON(w, http.StatusOK, identity)
}
