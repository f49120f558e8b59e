// Package automation runs the trust-gated pipeline for repository lifecycle
// events: resolve the actor, check their trust score, then route to a
// deployment, a governance proposal, or review tooling. Unresolved identities
// and low scores fail closed.
package automation

import (
	"time"

	"github.com/google/uuid"
)

// EventKind tags inbound lifecycle events.
type EventKind string

const (
	KindPush        EventKind = "push"
	KindRelease     EventKind = "release"
	KindPullRequest EventKind = "pull_request"
)

// Commit is the slice of a pushed commit the pipeline reads.
type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ChangedFile carries a changed path and its diff for the accessibility scan.
type ChangedFile struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

// PRAction is the pull request sub-action the pipeline reacts to.
type PRAction string

const (
	PROpened PRAction = "opened"
	PRMerged PRAction = "merged"
)

// PullRequest is the slice of a pull request payload the pipeline reads.
type PullRequest struct {
	Number       int           `json:"number"`
	Title        string        `json:"title"`
	Author       string        `json:"author"`
	Action       PRAction      `json:"action"`
	ChangedFiles []ChangedFile `json:"changed_files,omitempty"`
}

// Release is the slice of a release payload the pipeline reads.
type Release struct {
	Tag  string `json:"tag"`
	Name string `json:"name,omitempty"`
}

// LifecycleEvent is an inbound repository webhook, validated only for the
// fields this pipeline reads. Everything else stays with the sender.
type LifecycleEvent struct {
	Kind        EventKind    `json:"kind"`
	Repo        string       `json:"repo"`
	Actor       string       `json:"actor"`
	Ref         string       `json:"ref,omitempty"`
	Commits     []Commit     `json:"commits,omitempty"`
	PullRequest *PullRequest `json:"pull_request,omitempty"`
	Release     *Release     `json:"release,omitempty"`
}

// DeploymentPath distinguishes protected-branch deploys from previews.
type DeploymentPath string

const (
	PathProduction DeploymentPath = "production"
	PathPreview    DeploymentPath = "preview"
)

// DeploymentStatus tracks a deployment record's lifecycle.
type DeploymentStatus string

const (
	DeployPending   DeploymentStatus = "pending"
	DeployDeploying DeploymentStatus = "deploying"
	DeployDeployed  DeploymentStatus = "deployed"
	DeployFailed    DeploymentStatus = "failed"
)

// DeploymentRecord tracks one triggered deployment. The external collaborator
// runs off the request path; callers get the record id immediately and poll.
type DeploymentRecord struct {
	ID          uuid.UUID        `json:"id"`
	Repo        string           `json:"repo"`
	Actor       string           `json:"actor"`
	Ref         string           `json:"ref"`
	Path        DeploymentPath   `json:"path"`
	Status      DeploymentStatus `json:"status"`
	ExternalRef string           `json:"external_ref,omitempty"`
	URL         string           `json:"url,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ProposalStatus tracks governance proposal resolution. Window closure is the
// sole resolution trigger; votes never resolve a proposal early.
type ProposalStatus string

const (
	ProposalActive   ProposalStatus = "active"
	ProposalPassed   ProposalStatus = "passed"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExpired  ProposalStatus = "expired"
)

// VoteChoice is a governance ballot.
type VoteChoice string

const (
	VoteFor     VoteChoice = "for"
	VoteAgainst VoteChoice = "against"
	VoteAbstain VoteChoice = "abstain"
)

// GovernanceProposal gates major releases behind a voting window.
type GovernanceProposal struct {
	ID           uuid.UUID      `json:"id"`
	Repo         string         `json:"repo"`
	Tag          string         `json:"tag"`
	Title        string         `json:"title"`
	Status       ProposalStatus `json:"status"`
	VotesFor     int            `json:"votes_for"`
	VotesAgainst int            `json:"votes_against"`
	VotesAbstain int            `json:"votes_abstain"`
	CreatedAt    time.Time      `json:"created_at"`
	VotingEndsAt time.Time      `json:"voting_ends_at"`
}

// TaskCategory is a required review check category for an opened PR.
type TaskCategory string

const (
	TaskCodeQuality   TaskCategory = "code_quality"
	TaskSecurity      TaskCategory = "security"
	TaskAccessibility TaskCategory = "accessibility"
)

// ReviewTask is one typed review obligation created for an opened PR.
type ReviewTask struct {
	ID        uuid.UUID    `json:"id"`
	Repo      string       `json:"repo"`
	PRNumber  int          `json:"pr_number"`
	Category  TaskCategory `json:"category"`
	CreatedAt time.Time    `json:"created_at"`
}

// ScanReport is the structured result of the accessibility diff scan.
type ScanReport struct {
	MarkersFound   int      `json:"markers_found"`
	MissingAltText []string `json:"missing_alt_text"`
	Passed         bool     `json:"passed"`
}
