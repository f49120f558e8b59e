package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinksync/internal/ledger"
	"pinksync/internal/trust"
	dErrors "pinksync/pkg/domain-errors"
)

var testNow = time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)

type recordingLedger struct {
	mu      sync.Mutex
	entries []ledger.EntryType
}

func (l *recordingLedger) Append(_ context.Context, t ledger.EntryType, _ any) (ledger.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, t)
	return ledger.Entry{Seq: uint64(len(l.entries))}, nil
}

func (l *recordingLedger) countType(t ledger.EntryType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e == t {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	mu         sync.Mutex
	identities map[string]*trust.Identity
	calls      int
}

func (f *fakeResolver) Resolve(_ context.Context, uid string) (*trust.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	id, ok := f.identities[uid]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnknownIdentity, "identity %s is not registered", uid)
	}
	return id, nil
}

type fakeTrustUpdater struct {
	mu      sync.Mutex
	unknown map[string]bool
	updates []trust.Contribution
}

func (f *fakeTrustUpdater) Update(_ context.Context, uid string, c trust.Contribution) (*trust.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unknown[uid] {
		return nil, dErrors.Newf(dErrors.CodeUnknownIdentity, "identity %s is not registered", uid)
	}
	f.updates = append(f.updates, c)
	return &trust.Identity{UID: uid}, nil
}

type fakeDeployer struct {
	mu        sync.Mutex
	failFirst int
	attempts  int
}

func (f *fakeDeployer) Deploy(_ context.Context, rec DeploymentRecord) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failFirst {
		return "", "", errors.New("deploy collaborator unavailable")
	}
	return "ext-" + rec.ID.String()[:8], "https://deploys.example/" + rec.ID.String()[:8], nil
}

type fakeCollaborator struct {
	mu       sync.Mutex
	comments []string
}

func (f *fakeCollaborator) Comment(_ context.Context, _ string, _ int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, body)
	return nil
}

type pipelineFixture struct {
	pipeline    *Pipeline
	resolver    *fakeResolver
	trust       *fakeTrustUpdater
	deployer    *fakeDeployer
	collab      *fakeCollaborator
	deployments *InMemoryDeploymentStore
	proposals   *InMemoryProposalStore
	ledger      *recordingLedger
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		resolver: &fakeResolver{identities: map[string]*trust.Identity{
			"trusted-dev":  {UID: "trusted-dev", TrustScore: 85},
			"newcomer-dev": {UID: "newcomer-dev", TrustScore: 65},
		}},
		trust:       &fakeTrustUpdater{},
		deployer:    &fakeDeployer{},
		collab:      &fakeCollaborator{},
		deployments: NewInMemoryDeploymentStore(),
		proposals:   NewInMemoryProposalStore(),
		ledger:      &recordingLedger{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	governance := NewGovernance(f.proposals, f.ledger, logger, 7*24*time.Hour,
		WithGovernanceClock(func() time.Time { return testNow }))
	f.pipeline = NewPipeline(
		f.resolver, f.trust, f.deployments, NewInMemoryTaskStore(), governance,
		f.ledger, f.deployer, f.collab, logger,
		PipelineConfig{
			TrustThreshold:  70,
			ProtectedBranch: "main",
			GovernanceMajor: 1,
			DeployAttempts:  3,
			BackoffInitial:  time.Millisecond,
			BackoffMax:      5 * time.Millisecond,
		},
		WithPipelineClock(func() time.Time { return testNow }),
	)
	return f
}

func pushEvent(actor, ref string) LifecycleEvent {
	return LifecycleEvent{
		Kind:    KindPush,
		Repo:    "pinksync/deaf-first-app",
		Actor:   actor,
		Ref:     ref,
		Commits: []Commit{{ID: "abc123", Message: "add captions toggle"}},
	}
}

func TestProcess_LowTrustPushIsRejected(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.pipeline.Process(context.Background(), pushEvent("newcomer-dev", "refs/heads/main"))
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, RejectLowTrust, outcome.Reason)
	assert.Nil(t, outcome.Deployment)

	recs, err := f.deployments.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 1, f.ledger.countType(ledger.TypeAutomationRejected))
}

func TestProcess_UnknownActorSkipsTrustCheck(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.pipeline.Process(context.Background(), pushEvent("ghost-dev", "refs/heads/main"))
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, RejectUnknownIdentity, outcome.Reason)

	// Fail closed: nothing downstream of resolution runs.
	assert.Equal(t, 1, f.resolver.calls)
	assert.Empty(t, f.trust.updates)
	assert.Equal(t, 1, f.ledger.countType(ledger.TypeAutomationRejected))
}

func TestProcess_ProtectedBranchDeploysToProduction(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.pipeline.Process(context.Background(), pushEvent("trusted-dev", "refs/heads/main"))
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.NotNil(t, outcome.Deployment)
	assert.Equal(t, PathProduction, outcome.Deployment.Path)

	f.pipeline.Wait()
	rec, err := f.pipeline.GetDeployment(context.Background(), outcome.Deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, DeployDeployed, rec.Status)
	assert.NotEmpty(t, rec.URL)
	assert.NotEmpty(t, rec.ExternalRef)

	// One entry for creation, one for the terminal status.
	assert.Equal(t, 2, f.ledger.countType(ledger.TypeDeployment))
}

func TestProcess_FeatureBranchDeploysToPreview(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.pipeline.Process(context.Background(), pushEvent("trusted-dev", "refs/heads/feature/captions"))
	require.NoError(t, err)
	require.NotNil(t, outcome.Deployment)
	assert.Equal(t, PathPreview, outcome.Deployment.Path)
}

func TestProcess_DeployRetriesThenSettles(t *testing.T) {
	f := newFixture(t)
	f.deployer.failFirst = 2

	outcome, err := f.pipeline.Process(context.Background(), pushEvent("trusted-dev", "refs/heads/main"))
	require.NoError(t, err)
	f.pipeline.Wait()

	rec, err := f.pipeline.GetDeployment(context.Background(), outcome.Deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, DeployDeployed, rec.Status)
	assert.Equal(t, 3, f.deployer.attempts)
}

func TestProcess_DeployExhaustionSettlesFailed(t *testing.T) {
	f := newFixture(t)
	f.deployer.failFirst = 100

	outcome, err := f.pipeline.Process(context.Background(), pushEvent("trusted-dev", "refs/heads/main"))
	require.NoError(t, err)
	f.pipeline.Wait()

	rec, err := f.pipeline.GetDeployment(context.Background(), outcome.Deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, DeployFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestProcess_MajorReleaseOpensGovernanceProposal(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.pipeline.Process(context.Background(), LifecycleEvent{
		Kind:    KindRelease,
		Repo:    "pinksync/deaf-first-app",
		Actor:   "trusted-dev",
		Release: &Release{Tag: "v1.0.0"},
	})
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.NotNil(t, outcome.Proposal)
	assert.Nil(t, outcome.Deployment)

	p := outcome.Proposal
	assert.Equal(t, ProposalActive, p.Status)
	assert.Equal(t, 0, p.VotesFor)
	assert.Equal(t, 0, p.VotesAgainst)
	assert.Equal(t, 0, p.VotesAbstain)
	assert.Equal(t, testNow.Add(7*24*time.Hour), p.VotingEndsAt)
	assert.Equal(t, 1, f.ledger.countType(ledger.TypeGovernanceProposal))
}

func TestProcess_ResubmittedReleaseReusesActiveProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	release := LifecycleEvent{
		Kind:    KindRelease,
		Repo:    "pinksync/deaf-first-app",
		Actor:   "trusted-dev",
		Release: &Release{Tag: "v1.0.0"},
	}

	first, err := f.pipeline.Process(ctx, release)
	require.NoError(t, err)
	second, err := f.pipeline.Process(ctx, release)
	require.NoError(t, err)

	assert.Equal(t, first.Proposal.ID, second.Proposal.ID)
	assert.Nil(t, second.Deployment)
	assert.Equal(t, 1, f.ledger.countType(ledger.TypeGovernanceProposal))
}

func TestProcess_PassedProposalAuthorizesRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	release := LifecycleEvent{
		Kind:    KindRelease,
		Repo:    "pinksync/deaf-first-app",
		Actor:   "trusted-dev",
		Release: &Release{Tag: "v1.0.0"},
	}

	outcome, err := f.pipeline.Process(ctx, release)
	require.NoError(t, err)
	require.NotNil(t, outcome.Proposal)

	passed := *outcome.Proposal
	passed.Status = ProposalPassed
	passed.VotesFor = 3
	require.NoError(t, f.proposals.Put(ctx, passed))

	// Resubmitting the release after passage follows the production path.
	authorized, err := f.pipeline.Process(ctx, release)
	require.NoError(t, err)
	f.pipeline.Wait()

	require.NotNil(t, authorized.Deployment)
	assert.Equal(t, PathProduction, authorized.Deployment.Path)
	assert.Equal(t, outcome.Proposal.ID, authorized.Proposal.ID)
	assert.Equal(t, 1, f.ledger.countType(ledger.TypeGovernanceProposal))
}

func TestProcess_MinorReleaseDeploysDirectly(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.pipeline.Process(context.Background(), LifecycleEvent{
		Kind:    KindRelease,
		Repo:    "pinksync/deaf-first-app",
		Actor:   "trusted-dev",
		Release: &Release{Tag: "v0.9.3"},
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Deployment)
	assert.Equal(t, PathProduction, outcome.Deployment.Path)
	assert.Nil(t, outcome.Proposal)
}

func TestProcess_PullRequestOpenedCreatesTasksAndComment(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.pipeline.Process(context.Background(), LifecycleEvent{
		Kind:  KindPullRequest,
		Repo:  "pinksync/deaf-first-app",
		Actor: "newcomer-dev",
		PullRequest: &PullRequest{
			Number: 42,
			Author: "newcomer-dev",
			Action: PROpened,
			ChangedFiles: []ChangedFile{
				{Path: "ui/banner.html", Patch: "+<img src=\"hero.png\">\n+<div aria-label=\"menu\">"},
			},
		},
	})
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.Len(t, outcome.Tasks, 3)

	categories := map[TaskCategory]bool{}
	for _, task := range outcome.Tasks {
		categories[task.Category] = true
	}
	assert.True(t, categories[TaskCodeQuality])
	assert.True(t, categories[TaskSecurity])
	assert.True(t, categories[TaskAccessibility])

	require.Len(t, f.collab.comments, 1)
	assert.Contains(t, f.collab.comments[0], "ui/banner.html")
	assert.Contains(t, f.collab.comments[0], "Failed")
}

func TestProcess_PullRequestMergedCreditsAuthor(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Process(context.Background(), LifecycleEvent{
		Kind:  KindPullRequest,
		Repo:  "pinksync/deaf-first-app",
		Actor: "trusted-dev",
		PullRequest: &PullRequest{
			Number: 42,
			Author: "newcomer-dev",
			Action: PRMerged,
		},
	})
	require.NoError(t, err)

	require.Len(t, f.trust.updates, 1)
	assert.Equal(t, trust.ActionPRMerged, f.trust.updates[0].Action)
}

func TestProcess_MergedPRUnknownAuthorIsRejected(t *testing.T) {
	f := newFixture(t)
	f.trust.unknown = map[string]bool{"ghost-dev": true}

	// The merger resolves; the credited author does not.
	outcome, err := f.pipeline.Process(context.Background(), LifecycleEvent{
		Kind:  KindPullRequest,
		Repo:  "pinksync/deaf-first-app",
		Actor: "trusted-dev",
		PullRequest: &PullRequest{
			Number: 42,
			Author: "ghost-dev",
			Action: PRMerged,
		},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, RejectUnknownIdentity, outcome.Reason)
	assert.Empty(t, f.trust.updates)
	assert.Equal(t, 1, f.ledger.countType(ledger.TypeAutomationRejected))
}

func TestParseSemver(t *testing.T) {
	tests := []struct {
		tag     string
		want    semver
		wantErr bool
	}{
		{tag: "v1.0.0", want: semver{1, 0, 0}},
		{tag: "2.13.7", want: semver{2, 13, 7}},
		{tag: "v0.9.3-rc.1", want: semver{0, 9, 3}},
		{tag: "v1.2.3+build.5", want: semver{1, 2, 3}},
		{tag: "v1.0", wantErr: true},
		{tag: "latest", wantErr: true},
		{tag: "v1.x.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := parseSemver(tt.tag)
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanDiffs(t *testing.T) {
	report := ScanDiffs([]ChangedFile{
		{Path: "ui/nav.html", Patch: "+<nav role=\"navigation\" aria-label=\"main\">\n-old line"},
		{Path: "ui/hero.html", Patch: "+<img src=\"a.png\">\n+<img src=\"b.png\" alt=\"banner\">"},
	})
	assert.False(t, report.Passed)
	assert.Equal(t, []string{"ui/hero.html"}, report.MissingAltText)
	assert.GreaterOrEqual(t, report.MarkersFound, 2)

	clean := ScanDiffs([]ChangedFile{
		{Path: "ui/ok.html", Patch: "+<img src=\"c.png\" alt=\"chart\">"},
	})
	assert.True(t, clean.Passed)
	assert.Empty(t, clean.MissingAltText)
}

func TestScanDiffs_IgnoresRemovedLines(t *testing.T) {
	report := ScanDiffs([]ChangedFile{
		{Path: "ui/old.html", Patch: "-<img src=\"gone.png\">"},
	})
	assert.True(t, report.Passed)
	assert.Zero(t, report.MarkersFound)
}

func TestGovernance_WindowClosureIsSoleResolutionTrigger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := &recordingLedger{}
	store := NewInMemoryProposalStore()
	clock := testNow
	g := NewGovernance(store, led, logger, 7*24*time.Hour,
		WithGovernanceClock(func() time.Time { return clock }))
	ctx := context.Background()

	p, err := g.Create(ctx, "pinksync/deaf-first-app", "v2.0.0", "Release v2.0.0")
	require.NoError(t, err)

	// A landslide does not close the window early.
	for i := 0; i < 10; i++ {
		_, err = g.Vote(ctx, p.ID, VoteFor)
		require.NoError(t, err)
	}
	_, err = g.Vote(ctx, p.ID, VoteAgainst)
	require.NoError(t, err)
	_, err = g.Vote(ctx, p.ID, VoteAbstain)
	require.NoError(t, err)

	open, err := g.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalActive, open.Status)

	// Reading after expiry resolves lazily.
	clock = testNow.Add(7*24*time.Hour + time.Minute)
	resolved, err := g.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalPassed, resolved.Status)
	assert.Equal(t, 10, resolved.VotesFor)
	assert.Equal(t, 1, led.countType(ledger.TypeGovernanceResolved))

	_, err = g.Vote(ctx, p.ID, VoteFor)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestGovernance_SweepResolvesTiesAsRejected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := &recordingLedger{}
	store := NewInMemoryProposalStore()
	clock := testNow
	g := NewGovernance(store, led, logger, 7*24*time.Hour,
		WithGovernanceClock(func() time.Time { return clock }))
	ctx := context.Background()

	p, err := g.Create(ctx, "pinksync/deaf-first-app", "v3.0.0", "Release v3.0.0")
	require.NoError(t, err)
	_, err = g.Vote(ctx, p.ID, VoteFor)
	require.NoError(t, err)
	_, err = g.Vote(ctx, p.ID, VoteAgainst)
	require.NoError(t, err)

	clock = testNow.Add(8 * 24 * time.Hour)
	require.NoError(t, g.Sweep(ctx))

	resolved, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalRejected, resolved.Status)
}

func TestGovernance_ReplayRebuildsProposals(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain, err := ledger.NewService(ctx, ledger.NewInMemoryStore(), logger)
	require.NoError(t, err)

	clock := testNow
	g := NewGovernance(NewInMemoryProposalStore(), chain, logger, 7*24*time.Hour,
		WithGovernanceClock(func() time.Time { return clock }))

	settled, err := g.Create(ctx, "pinksync/deaf-first-app", "v2.0.0", "Release v2.0.0")
	require.NoError(t, err)
	_, err = g.Vote(ctx, settled.ID, VoteFor)
	require.NoError(t, err)
	_, err = g.Vote(ctx, settled.ID, VoteFor)
	require.NoError(t, err)
	_, err = g.Vote(ctx, settled.ID, VoteAgainst)
	require.NoError(t, err)
	clock = testNow.Add(8 * 24 * time.Hour)
	require.NoError(t, g.Sweep(ctx))

	open, err := g.Create(ctx, "pinksync/deaf-first-app", "v3.0.0", "Release v3.0.0")
	require.NoError(t, err)
	_, err = g.Vote(ctx, open.ID, VoteAbstain)
	require.NoError(t, err)

	// A fresh process with an empty store catches up from the chain alone.
	rebuilt := NewGovernance(NewInMemoryProposalStore(), chain, logger, 7*24*time.Hour,
		WithGovernanceClock(func() time.Time { return clock }))
	require.NoError(t, rebuilt.Replay(ctx, chain))

	passed, err := rebuilt.Get(ctx, settled.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalPassed, passed.Status)
	assert.Equal(t, 2, passed.VotesFor)
	assert.Equal(t, 1, passed.VotesAgainst)
	assert.Equal(t, "Release v2.0.0", passed.Title)

	active, err := rebuilt.Get(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalActive, active.Status)
	assert.Equal(t, 1, active.VotesAbstain)
}

func TestReplayDeployments_RestoresRecordsAndSettlesInterrupted(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain, err := ledger.NewService(ctx, ledger.NewInMemoryStore(), logger)
	require.NoError(t, err)

	resolver := &fakeResolver{identities: map[string]*trust.Identity{
		"trusted-dev": {UID: "trusted-dev", TrustScore: 85},
	}}
	cfg := PipelineConfig{
		TrustThreshold:  70,
		ProtectedBranch: "main",
		GovernanceMajor: 1,
		DeployAttempts:  3,
		BackoffInitial:  time.Millisecond,
		BackoffMax:      5 * time.Millisecond,
	}
	governance := NewGovernance(NewInMemoryProposalStore(), chain, logger, 7*24*time.Hour)
	first := NewPipeline(resolver, &fakeTrustUpdater{}, NewInMemoryDeploymentStore(),
		NewInMemoryTaskStore(), governance, chain, &fakeDeployer{}, &fakeCollaborator{}, logger, cfg)

	outcome, err := first.Process(ctx, pushEvent("trusted-dev", "refs/heads/main"))
	require.NoError(t, err)
	first.Wait()

	// A pending entry with no terminal entry is a deploy the process died on.
	orphanID := uuid.New()
	_, err = chain.Append(ctx, ledger.TypeDeployment, deploymentRecord{
		DeploymentID: orphanID.String(),
		Repo:         "pinksync/deaf-first-app",
		Actor:        "trusted-dev",
		Ref:          "refs/heads/main",
		Path:         string(PathProduction),
		Status:       string(DeployPending),
	})
	require.NoError(t, err)

	rebuilt := NewPipeline(resolver, &fakeTrustUpdater{}, NewInMemoryDeploymentStore(),
		NewInMemoryTaskStore(), governance, chain, &fakeDeployer{}, &fakeCollaborator{}, logger, cfg)
	require.NoError(t, rebuilt.ReplayDeployments(ctx, chain))

	rec, err := rebuilt.GetDeployment(ctx, outcome.Deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, DeployDeployed, rec.Status)
	assert.Equal(t, PathProduction, rec.Path)

	orphan, err := rebuilt.GetDeployment(ctx, orphanID)
	require.NoError(t, err)
	assert.Equal(t, DeployFailed, orphan.Status)
	assert.Equal(t, "interrupted by restart", orphan.Error)
}

func TestGovernance_NoBallotsExpires(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := &recordingLedger{}
	store := NewInMemoryProposalStore()
	clock := testNow
	g := NewGovernance(store, led, logger, 7*24*time.Hour,
		WithGovernanceClock(func() time.Time { return clock }))
	ctx := context.Background()

	p, err := g.Create(ctx, "pinksync/deaf-first-app", "v4.0.0", "Release v4.0.0")
	require.NoError(t, err)

	clock = testNow.Add(8 * 24 * time.Hour)
	require.NoError(t, g.Sweep(ctx))

	resolved, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProposalExpired, resolved.Status)
	assert.Equal(t, 1, led.countType(ledger.TypeGovernanceResolved))
}
