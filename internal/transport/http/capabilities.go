package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pinksync/internal/registry"
	"pinksync/internal/transport/http/shared"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// CapabilitiesHandler serves the capability registry surface.
type CapabilitiesHandler struct {
	registry *registry.Service
	logger   *slog.Logger
}

func NewCapabilitiesHandler(svc *registry.Service, logger *slog.Logger) *CapabilitiesHandler {
	return &CapabilitiesHandler{registry: svc, logger: logger}
}

func (h *CapabilitiesHandler) Register(r chi.Router) {
	r.Post("/capabilities", h.handleRegister)
	r.Get("/capabilities", h.handleQuery)
	r.Get("/capabilities/{appID}", h.handleGet)
	r.Delete("/capabilities/{appID}", h.handleDeregister)
}

type registerRequest struct {
	AppID        string   `json:"app_id"`
	Capabilities []string `json:"capabilities"`
	Level        string   `json:"compliance_level"`
	Version      string   `json:"version,omitempty"`
	Flags        []string `json:"flags,omitempty"`
}

func (h *CapabilitiesHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	appID, err := domain.ParseAppID(req.AppID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	level, err := domain.ParseLevel(req.Level)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	caps := make([]domain.Intent, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		intent, err := domain.ParseIntent(c)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		caps = append(caps, intent)
	}

	declaration, err := h.registry.Register(r.Context(), registry.Declaration{
		AppID:        appID,
		Capabilities: caps,
		Level:        level,
		Version:      req.Version,
		Flags:        req.Flags,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, declaration)
}

func (h *CapabilitiesHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var filter registry.Filter
	q := r.URL.Query()
	if v := q.Get("app_id"); v != "" {
		appID, err := domain.ParseAppID(v)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.AppID = appID
	}
	if v := q.Get("intent"); v != "" {
		intent, err := domain.ParseIntent(v)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.Intent = intent
	}
	if v := q.Get("compliance_level"); v != "" {
		level, err := domain.ParseLevel(v)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		filter.Level = level
	}

	declarations, err := h.registry.Query(r.Context(), filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"declarations": declarations})
}

func (h *CapabilitiesHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	appID, err := domain.ParseAppID(chi.URLParam(r, "appID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	declaration, err := h.registry.Get(r.Context(), appID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if declaration == nil {
		shared.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "app %s is not registered", appID))
		return
	}
	shared.WriteJSON(w, http.StatusOK, declaration)
}

func (h *CapabilitiesHandler) handleDeregister(w http.ResponseWriter, r *http.Request) {
	appID, err := domain.ParseAppID(chi.URLParam(r, "appID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.registry.Deregister(r.Context(), appID); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusNoContent, nil)
}
