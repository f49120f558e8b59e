package automation

import (
	"pinksync/internal/trust"
	dErrors "pinksync/pkg/domain-errors"
)

// Effect is an intended side effect produced by a lifecycle handler. Handlers
// are pure functions from payload to effects; the pipeline applies them.
type Effect interface {
	effect()
}

// CreateDeployment requests a deployment record plus an async deploy.
type CreateDeployment struct {
	Path DeploymentPath
}

// CreateProposal requests a governance proposal for a major release.
type CreateProposal struct {
	Tag   string
	Title string
}

// CreateReviewTasks requests typed review tasks for an opened PR.
type CreateReviewTasks struct {
	PRNumber   int
	Categories []TaskCategory
}

// PostComment requests a PR comment through the collaborator.
type PostComment struct {
	PRNumber int
	Body     string
}

// ApplyTrustDelta requests a trust score update for an identity.
type ApplyTrustDelta struct {
	UID          string
	Contribution trust.Contribution
}

func (CreateDeployment) effect()  {}
func (CreateProposal) effect()    {}
func (CreateReviewTasks) effect() {}
func (PostComment) effect()       {}
func (ApplyTrustDelta) effect()   {}

// HandlerConfig carries the routing knobs handlers read.
type HandlerConfig struct {
	ProtectedBranch string
	GovernanceMajor int
}

// Handler maps one lifecycle event to its intended effects.
type Handler func(event LifecycleEvent, cfg HandlerConfig) ([]Effect, error)

// Handlers is the dispatch table keyed by event kind.
func Handlers() map[EventKind]Handler {
	return map[EventKind]Handler{
		KindPush:        handlePush,
		KindRelease:     handleRelease,
		KindPullRequest: handlePullRequest,
	}
}

// handlePush routes the protected branch to production, everything else to a
// preview. The trust gate already ran; the handler only routes.
func handlePush(event LifecycleEvent, cfg HandlerConfig) ([]Effect, error) {
	if event.Ref == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "push event is missing ref")
	}
	path := PathPreview
	if refBranch(event.Ref) == cfg.ProtectedBranch {
		path = PathProduction
	}
	return []Effect{CreateDeployment{Path: path}}, nil
}

// handleRelease sends majors at or above the governance threshold to a vote;
// everything else deploys straight to production.
func handleRelease(event LifecycleEvent, cfg HandlerConfig) ([]Effect, error) {
	if event.Release == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "release event is missing release payload")
	}
	v, err := parseSemver(event.Release.Tag)
	if err != nil {
		return nil, err
	}
	if v.Major >= cfg.GovernanceMajor {
		title := event.Release.Name
		if title == "" {
			title = "Release " + event.Release.Tag
		}
		return []Effect{CreateProposal{Tag: event.Release.Tag, Title: title}}, nil
	}
	return []Effect{CreateDeployment{Path: PathProduction}}, nil
}

// handlePullRequest creates review obligations and the accessibility scan on
// open, and credits the author's trust score on merge.
func handlePullRequest(event LifecycleEvent, _ HandlerConfig) ([]Effect, error) {
	pr := event.PullRequest
	if pr == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "pull_request event is missing pull request payload")
	}
	switch pr.Action {
	case PROpened:
		report := ScanDiffs(pr.ChangedFiles)
		return []Effect{
			CreateReviewTasks{
				PRNumber:   pr.Number,
				Categories: []TaskCategory{TaskCodeQuality, TaskSecurity, TaskAccessibility},
			},
			PostComment{PRNumber: pr.Number, Body: FormatScanComment(report)},
		}, nil
	case PRMerged:
		return []Effect{
			ApplyTrustDelta{
				UID:          pr.Author,
				Contribution: trust.Contribution{Action: trust.ActionPRMerged},
			},
		}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported pull_request action %q", pr.Action)
	}
}

// refBranch strips the refs/heads/ prefix git refs carry.
func refBranch(ref string) string {
	const prefix = "refs/heads/"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ref
}
