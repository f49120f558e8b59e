package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pinksync/internal/compliance"
	"pinksync/internal/transport/http/shared"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// ComplianceHandler serves compliance reports, audits, and violation intake.
type ComplianceHandler struct {
	engine *compliance.Engine
	logger *slog.Logger
}

func NewComplianceHandler(engine *compliance.Engine, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{engine: engine, logger: logger}
}

func (h *ComplianceHandler) Register(r chi.Router) {
	r.Get("/compliance/{appID}", h.handleReport)
	r.Post("/compliance/{appID}/audit", h.handleAudit)
	r.Post("/compliance/{appID}/violations", h.handleViolation)
}

func (h *ComplianceHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	appID, err := domain.ParseAppID(chi.URLParam(r, "appID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	report, err := h.engine.Report(r.Context(), appID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if r.URL.Query().Get("detailed") == "" {
		report.Violations = nil
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

func (h *ComplianceHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	appID, err := domain.ParseAppID(chi.URLParam(r, "appID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	result, err := h.engine.RequestAudit(r.Context(), appID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

type violationRequest struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description,omitempty"`
}

func (h *ComplianceHandler) handleViolation(w http.ResponseWriter, r *http.Request) {
	appID, err := domain.ParseAppID(chi.URLParam(r, "appID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req violationRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	severity := compliance.Severity(req.Severity)
	switch severity {
	case compliance.SeverityCritical, compliance.SeverityWarning, compliance.SeverityInfo:
	default:
		shared.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "unknown severity %q", req.Severity))
		return
	}
	if req.Type == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "type is required"))
		return
	}

	if err := h.engine.RecordViolation(r.Context(), appID, compliance.Violation{
		Type:        req.Type,
		Severity:    severity,
		Description: req.Description,
	}); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}
