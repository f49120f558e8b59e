package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pinksync/internal/ledger"
	dErrors "pinksync/pkg/domain-errors"
)

// Governance resolves proposals strictly by wall-clock window expiry. Votes
// accumulate while the window is open; no vote count closes a proposal early.
type Governance struct {
	store  ProposalStore
	ledger Ledger
	logger *slog.Logger
	window time.Duration
	now    func() time.Time
}

type GovernanceOption func(*Governance)

// WithGovernanceClock overrides the time source for tests.
func WithGovernanceClock(now func() time.Time) GovernanceOption {
	return func(g *Governance) { g.now = now }
}

func NewGovernance(store ProposalStore, led Ledger, logger *slog.Logger, window time.Duration, opts ...GovernanceOption) *Governance {
	g := &Governance{
		store:  store,
		ledger: led,
		logger: logger,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// proposalRecord is the ledger payload for proposal lifecycle.
type proposalRecord struct {
	ProposalID   string `json:"proposal_id"`
	Repo         string `json:"repo"`
	Tag          string `json:"tag"`
	Title        string `json:"title,omitempty"`
	Status       string `json:"status"`
	VotesFor     int    `json:"votes_for"`
	VotesAgainst int    `json:"votes_against"`
	VotesAbstain int    `json:"votes_abstain"`
}

// voteRecord is the ledger payload for one ballot.
type voteRecord struct {
	ProposalID string `json:"proposal_id"`
	Choice     string `json:"choice"`
}

// Create opens a proposal with zero votes and a full voting window.
func (g *Governance) Create(ctx context.Context, repo, tag, title string) (*GovernanceProposal, error) {
	now := g.now().UTC()
	p := GovernanceProposal{
		ID:           uuid.New(),
		Repo:         repo,
		Tag:          tag,
		Title:        title,
		Status:       ProposalActive,
		CreatedAt:    now,
		VotingEndsAt: now.Add(g.window),
	}
	if err := g.store.Put(ctx, p); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store proposal", err)
	}
	if _, err := g.ledger.Append(ctx, ledger.TypeGovernanceProposal, proposalRecord{
		ProposalID: p.ID.String(),
		Repo:       repo,
		Tag:        tag,
		Title:      title,
		Status:     string(ProposalActive),
	}); err != nil {
		return nil, err
	}
	g.logger.InfoContext(ctx, "governance proposal created",
		"proposal_id", p.ID.String(),
		"repo", repo,
		"tag", tag,
	)
	return &p, nil
}

// Vote records one ballot. Ballots against a closed window are conflicts.
func (g *Governance) Vote(ctx context.Context, proposalID uuid.UUID, choice VoteChoice) (*GovernanceProposal, error) {
	p, err := g.load(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != ProposalActive {
		return nil, dErrors.Newf(dErrors.CodeConflict, "proposal %s is %s", proposalID, p.Status)
	}

	switch choice {
	case VoteFor:
		p.VotesFor++
	case VoteAgainst:
		p.VotesAgainst++
	case VoteAbstain:
		p.VotesAbstain++
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown vote choice %q", choice)
	}
	if err := g.store.Put(ctx, *p); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store proposal", err)
	}
	if _, err := g.ledger.Append(ctx, ledger.TypeGovernanceVote, voteRecord{
		ProposalID: p.ID.String(),
		Choice:     string(choice),
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a proposal, lazily resolving it if its window has expired.
func (g *Governance) Get(ctx context.Context, proposalID uuid.UUID) (*GovernanceProposal, error) {
	return g.load(ctx, proposalID)
}

// load fetches and lazily resolves one proposal.
func (g *Governance) load(ctx context.Context, proposalID uuid.UUID) (*GovernanceProposal, error) {
	p, err := g.store.Get(ctx, proposalID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load proposal", err)
	}
	if p == nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "proposal %s does not exist", proposalID)
	}
	if p.Status == ProposalActive && !g.now().UTC().Before(p.VotingEndsAt) {
		if err := g.resolve(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ForRelease returns the newest proposal gating one release, lazily resolving
// it first. Nil when the release was never proposed.
func (g *Governance) ForRelease(ctx context.Context, repo, tag string) (*GovernanceProposal, error) {
	p, err := g.store.FindByRelease(ctx, repo, tag)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find proposal", err)
	}
	if p == nil {
		return nil, nil
	}
	if p.Status == ProposalActive && !g.now().UTC().Before(p.VotingEndsAt) {
		if err := g.resolve(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Sweep resolves every open proposal whose window has closed.
func (g *Governance) Sweep(ctx context.Context) error {
	open, err := g.store.ListOpen(ctx)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "list open proposals", err)
	}
	now := g.now().UTC()
	for i := range open {
		if now.Before(open[i].VotingEndsAt) {
			continue
		}
		if err := g.resolve(ctx, &open[i]); err != nil {
			return err
		}
	}
	return nil
}

// Run sweeps on an interval until the context is cancelled.
func (g *Governance) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.Sweep(ctx); err != nil {
				g.logger.Error("governance sweep failed", "error", err)
			}
		}
	}
}

// resolve closes a proposal whose window elapsed. Passing requires a strict
// majority of for over against; abstentions never decide. A window with no
// ballots at all expires instead of rejecting.
func (g *Governance) resolve(ctx context.Context, p *GovernanceProposal) error {
	switch {
	case p.VotesFor == 0 && p.VotesAgainst == 0 && p.VotesAbstain == 0:
		p.Status = ProposalExpired
	case p.VotesFor > p.VotesAgainst:
		p.Status = ProposalPassed
	default:
		p.Status = ProposalRejected
	}
	if err := g.store.Put(ctx, *p); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "store proposal", err)
	}
	if _, err := g.ledger.Append(ctx, ledger.TypeGovernanceResolved, proposalRecord{
		ProposalID:   p.ID.String(),
		Repo:         p.Repo,
		Tag:          p.Tag,
		Status:       string(p.Status),
		VotesFor:     p.VotesFor,
		VotesAgainst: p.VotesAgainst,
		VotesAbstain: p.VotesAbstain,
	}); err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "governance proposal resolved",
		"proposal_id", p.ID.String(),
		"status", string(p.Status),
	)
	return nil
}
