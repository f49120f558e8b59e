package automation

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"pinksync/internal/ledger"
	dErrors "pinksync/pkg/domain-errors"
)

// ChainReader is the slice of the ledger the replays read.
type ChainReader interface {
	Head() uint64
	Range(ctx context.Context, from, to uint64) ([]ledger.Entry, error)
}

// Replay rebuilds the proposal store from the chain: proposal entries open
// them, vote entries re-count ballots, and resolution entries settle the final
// status. The voting window is reconstructed from the configured duration, so
// the window length must not change across restarts. Called once at startup,
// before the sweep loop runs.
func (g *Governance) Replay(ctx context.Context, chain ChainReader) error {
	head := chain.Head()
	if head == 0 {
		return nil
	}
	entries, err := chain.Range(ctx, 1, head)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "replay ledger", err)
	}

	replayed := 0
	for _, entry := range entries {
		switch entry.Type {
		case ledger.TypeGovernanceProposal:
			var p proposalRecord
			if err := json.Unmarshal(entry.Payload, &p); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode proposal payload", err)
			}
			id, perr := uuid.Parse(p.ProposalID)
			if perr != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode proposal payload", perr)
			}
			if err := g.store.Put(ctx, GovernanceProposal{
				ID:           id,
				Repo:         p.Repo,
				Tag:          p.Tag,
				Title:        p.Title,
				Status:       ProposalActive,
				CreatedAt:    entry.RecordedAt,
				VotingEndsAt: entry.RecordedAt.Add(g.window),
			}); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "store proposal", err)
			}
			replayed++

		case ledger.TypeGovernanceVote:
			var v voteRecord
			if err := json.Unmarshal(entry.Payload, &v); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode vote payload", err)
			}
			id, perr := uuid.Parse(v.ProposalID)
			if perr != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode vote payload", perr)
			}
			p, gerr := g.store.Get(ctx, id)
			if gerr != nil || p == nil {
				return dErrors.Newf(dErrors.CodeInternal, "vote entry %d references unknown proposal %s", entry.Seq, v.ProposalID)
			}
			switch VoteChoice(v.Choice) {
			case VoteFor:
				p.VotesFor++
			case VoteAgainst:
				p.VotesAgainst++
			case VoteAbstain:
				p.VotesAbstain++
			}
			if err := g.store.Put(ctx, *p); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "store proposal", err)
			}

		case ledger.TypeGovernanceResolved:
			var p proposalRecord
			if err := json.Unmarshal(entry.Payload, &p); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode resolution payload", err)
			}
			id, perr := uuid.Parse(p.ProposalID)
			if perr != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode resolution payload", perr)
			}
			prop, gerr := g.store.Get(ctx, id)
			if gerr != nil || prop == nil {
				return dErrors.Newf(dErrors.CodeInternal, "resolution entry %d references unknown proposal %s", entry.Seq, p.ProposalID)
			}
			prop.Status = ProposalStatus(p.Status)
			prop.VotesFor = p.VotesFor
			prop.VotesAgainst = p.VotesAgainst
			prop.VotesAbstain = p.VotesAbstain
			if err := g.store.Put(ctx, *prop); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "store proposal", err)
			}
		}
	}
	g.logger.InfoContext(ctx, "governance proposals rebuilt", "proposals", replayed, "head", head)
	return nil
}

// ReplayDeployments rebuilds deployment records from the chain. Each
// deployment appears as a pending entry followed by a terminal one; a record
// whose terminal entry never landed was in flight when the process died and is
// settled as failed, since the collaborator call cannot be resumed.
func (p *Pipeline) ReplayDeployments(ctx context.Context, chain ChainReader) error {
	head := chain.Head()
	if head == 0 {
		return nil
	}
	entries, err := chain.Range(ctx, 1, head)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "replay ledger", err)
	}

	replayed := 0
	for _, entry := range entries {
		if entry.Type != ledger.TypeDeployment {
			continue
		}
		var d deploymentRecord
		if err := json.Unmarshal(entry.Payload, &d); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "decode deployment payload", err)
		}
		id, perr := uuid.Parse(d.DeploymentID)
		if perr != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "decode deployment payload", perr)
		}
		rec, gerr := p.deployments.Get(ctx, id)
		if gerr != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "load deployment", gerr)
		}
		if rec == nil {
			rec = &DeploymentRecord{
				ID:        id,
				Repo:      d.Repo,
				Actor:     d.Actor,
				Ref:       d.Ref,
				Path:      DeploymentPath(d.Path),
				CreatedAt: entry.RecordedAt,
			}
			replayed++
		}
		rec.Status = DeploymentStatus(d.Status)
		rec.Error = d.Error
		rec.UpdatedAt = entry.RecordedAt
		if err := p.deployments.Put(ctx, *rec); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "store deployment", err)
		}
	}

	recs, err := p.deployments.List(ctx)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "list deployments", err)
	}
	for _, rec := range recs {
		if rec.Status != DeployPending && rec.Status != DeployDeploying {
			continue
		}
		rec.Status = DeployFailed
		rec.Error = "interrupted by restart"
		if err := p.deployments.Put(ctx, rec); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "store deployment", err)
		}
		p.logger.Warn("deployment interrupted by restart settled as failed",
			"deployment_id", rec.ID.String())
	}
	p.logger.InfoContext(ctx, "deployment records rebuilt", "deployments", replayed, "head", head)
	return nil
}
