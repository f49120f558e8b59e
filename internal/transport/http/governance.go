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

// GovernanceHandler serves proposal reads and votes.
type GovernanceHandler struct {
	governance *automation.Governance
	logger     *slog.Logger
}

func NewGovernanceHandler(g *automation.Governance, logger *slog.Logger) *GovernanceHandler {
	return &GovernanceHandler{governance: g, logger: logger}
}

func (h *GovernanceHandler) Register(r chi.Router) {
	r.Get("/governance/{proposalID}", h.handleGet)
	r.Post("/governance/{proposalID}/votes", h.handleVote)
}

func (h *GovernanceHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	proposal, err := h.governance.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, proposal)
}

type voteRequest struct {
	Choice automation.VoteChoice `json:"choice"`
}

func (h *GovernanceHandler) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req voteRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	proposal, err := h.governance.Vote(r.Context(), id, req.Choice)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, proposal)
}

func proposalID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "proposalID"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "proposal id must be a UUID")
	}
	return id, nil
}
