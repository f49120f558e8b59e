// Package trust maintains developer identities and their trust scores. Scores
// gate the automation pipeline: below the threshold, lifecycle events can
// never trigger a deployment.
package trust

import (
	"time"

	dErrors "pinksync/pkg/domain-errors"
)

// Action is a recognized contribution category.
type Action string

const (
	ActionCodeContribution Action = "code_contribution"
	ActionPRMerged         Action = "pr_merged"
	ActionReleasePublished Action = "release_published"
	ActionDAOParticipation Action = "dao_participation"
	ActionCommunityHelp    Action = "community_help"
)

// Contribution is one scored activity. Commits is only meaningful for
// code_contribution.
type Contribution struct {
	Action  Action `json:"action"`
	Commits int    `json:"commits,omitempty"`
}

// Delta returns the score adjustment for a contribution. The table is fixed;
// changing it requires a governance proposal, not a config knob.
func (c Contribution) Delta() (int64, error) {
	switch c.Action {
	case ActionCodeContribution:
		if c.Commits < 0 {
			return 0, dErrors.New(dErrors.CodeInvalidInput, "commits cannot be negative")
		}
		return 2 * int64(c.Commits), nil
	case ActionPRMerged:
		return 10, nil
	case ActionReleasePublished:
		return 25, nil
	case ActionDAOParticipation:
		return 5, nil
	case ActionCommunityHelp:
		return 3, nil
	default:
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown contribution action %q", c.Action)
	}
}

// Identity is a developer account known to the trust system.
type Identity struct {
	UID           string    `json:"uid"`
	TrustScore    int64     `json:"trust_score"`
	Contributions int64     `json:"contributions"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Meets reports whether the identity clears a trust threshold.
func (i Identity) Meets(threshold int64) bool {
	return i.TrustScore >= threshold
}
