package automation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pinksync/internal/ledger"
	"pinksync/internal/platform/metrics"
	"pinksync/internal/trust"
	dErrors "pinksync/pkg/domain-errors"
)

// Ledger is the slice of the audit ledger the pipeline writes through.
type Ledger interface {
	Append(ctx context.Context, entryType ledger.EntryType, payload any) (ledger.Entry, error)
}

// IdentityResolver resolves actor handles to identities.
type IdentityResolver interface {
	Resolve(ctx context.Context, uid string) (*trust.Identity, error)
}

// TrustUpdater applies contribution deltas.
type TrustUpdater interface {
	Update(ctx context.Context, uid string, c trust.Contribution) (*trust.Identity, error)
}

// Deployer is the external deployment collaborator. Calls may block for
// seconds and always run off the request path.
type Deployer interface {
	Deploy(ctx context.Context, rec DeploymentRecord) (externalRef, url string, err error)
}

// Collaborator posts review feedback back to the repository host.
type Collaborator interface {
	Comment(ctx context.Context, repo string, prNumber int, body string) error
}

// PipelineConfig carries the gate and routing knobs.
type PipelineConfig struct {
	TrustThreshold  int64
	ProtectedBranch string
	GovernanceMajor int
	DeployAttempts  int
	BackoffInitial  time.Duration
	BackoffMax      time.Duration
}

// Outcome is what one processed lifecycle event produced.
type Outcome struct {
	Accepted   bool                `json:"accepted"`
	Reason     string              `json:"reason,omitempty"`
	Deployment *DeploymentRecord   `json:"deployment,omitempty"`
	Proposal   *GovernanceProposal `json:"proposal,omitempty"`
	Tasks      []ReviewTask        `json:"tasks,omitempty"`
}

// Rejection reasons written to the ledger and metrics.
const (
	RejectUnknownIdentity = "unknown_identity"
	RejectLowTrust        = "low_trust"
)

// Pipeline applies the trust gate and routes lifecycle events through the
// dispatch table. Deployments run asynchronously; everything else is applied
// before Process returns.
type Pipeline struct {
	handlers    map[EventKind]Handler
	resolver    IdentityResolver
	trust       TrustUpdater
	deployments DeploymentStore
	tasks       TaskStore
	governance  *Governance
	ledger      Ledger
	deployer    Deployer
	collab      Collaborator
	logger      *slog.Logger
	metrics     *metrics.Metrics
	cfg         PipelineConfig
	tracer      trace.Tracer

	wg  sync.WaitGroup
	now func() time.Time
}

type PipelineOption func(*Pipeline)

// WithPipelineClock overrides the time source for tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithPipelineMetrics attaches automation counters.
func WithPipelineMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(
	resolver IdentityResolver,
	trustUpdater TrustUpdater,
	deployments DeploymentStore,
	tasks TaskStore,
	governance *Governance,
	led Ledger,
	deployer Deployer,
	collab Collaborator,
	logger *slog.Logger,
	cfg PipelineConfig,
	opts ...PipelineOption,
) *Pipeline {
	if cfg.DeployAttempts <= 0 {
		cfg.DeployAttempts = 5
	}
	p := &Pipeline{
		handlers:    Handlers(),
		resolver:    resolver,
		trust:       trustUpdater,
		deployments: deployments,
		tasks:       tasks,
		governance:  governance,
		ledger:      led,
		deployer:    deployer,
		collab:      collab,
		logger:      logger,
		cfg:         cfg,
		tracer:      otel.Tracer("pinksync/automation"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// rejectionRecord is the ledger payload for gate rejections.
type rejectionRecord struct {
	Kind   string `json:"kind"`
	Repo   string `json:"repo"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
	Score  int64  `json:"score,omitempty"`
}

// deploymentRecord is the ledger payload for deployment transitions.
type deploymentRecord struct {
	DeploymentID string `json:"deployment_id"`
	Repo         string `json:"repo"`
	Actor        string `json:"actor"`
	Ref          string `json:"ref"`
	Path         string `json:"path"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// Process runs one lifecycle event through the gate and dispatch table.
// Rejections are normal outcomes: the gate result is ledgered and returned,
// never surfaced as an error to the webhook sender.
func (p *Pipeline) Process(ctx context.Context, event LifecycleEvent) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "automation.process",
		trace.WithAttributes(
			attribute.String("lifecycle.kind", string(event.Kind)),
			attribute.String("lifecycle.repo", event.Repo),
		))
	defer span.End()

	handler, ok := p.handlers[event.Kind]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported lifecycle event kind %q", event.Kind)
	}
	if event.Actor == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "lifecycle event is missing actor")
	}

	// Fail closed: every kind requires a resolvable actor.
	identity, err := p.resolver.Resolve(ctx, event.Actor)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnknownIdentity) {
			return p.reject(ctx, event, RejectUnknownIdentity, 0)
		}
		return nil, err
	}

	// The trust threshold gates deployment-producing kinds. Pull requests
	// only need a resolved identity; review is how new contributors earn
	// score in the first place.
	if event.Kind == KindPush || event.Kind == KindRelease {
		if !identity.Meets(p.cfg.TrustThreshold) {
			return p.reject(ctx, event, RejectLowTrust, identity.TrustScore)
		}
	}

	effects, err := handler(event, HandlerConfig{
		ProtectedBranch: p.cfg.ProtectedBranch,
		GovernanceMajor: p.cfg.GovernanceMajor,
	})
	if err != nil {
		return nil, err
	}
	return p.apply(ctx, event, effects)
}

func (p *Pipeline) reject(ctx context.Context, event LifecycleEvent, reason string, score int64) (*Outcome, error) {
	if _, err := p.ledger.Append(ctx, ledger.TypeAutomationRejected, rejectionRecord{
		Kind:   string(event.Kind),
		Repo:   event.Repo,
		Actor:  event.Actor,
		Reason: reason,
		Score:  score,
	}); err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.AutomationRejected.WithLabelValues(reason).Inc()
	}
	p.logger.WarnContext(ctx, "lifecycle event rejected",
		"kind", string(event.Kind),
		"actor", event.Actor,
		"reason", reason,
	)
	return &Outcome{Accepted: false, Reason: reason}, nil
}

func (p *Pipeline) apply(ctx context.Context, event LifecycleEvent, effects []Effect) (*Outcome, error) {
	outcome := &Outcome{Accepted: true}
	for _, effect := range effects {
		switch e := effect.(type) {
		case CreateDeployment:
			rec, err := p.createDeployment(ctx, event, e.Path)
			if err != nil {
				return nil, err
			}
			outcome.Deployment = rec

		case CreateProposal:
			existing, err := p.governance.ForRelease(ctx, event.Repo, e.Tag)
			if err != nil {
				return nil, err
			}
			switch {
			case existing != nil && existing.Status == ProposalActive:
				// The vote is still running; resubmission does not fork it.
				outcome.Proposal = existing

			case existing != nil && existing.Status == ProposalPassed:
				// A passed vote authorizes the release.
				rec, err := p.createDeployment(ctx, event, PathProduction)
				if err != nil {
					return nil, err
				}
				outcome.Proposal = existing
				outcome.Deployment = rec

			default:
				// Never proposed, rejected, or expired: open a fresh vote.
				proposal, err := p.governance.Create(ctx, event.Repo, e.Tag, e.Title)
				if err != nil {
					return nil, err
				}
				if p.metrics != nil {
					p.metrics.ProposalsCreated.Inc()
				}
				outcome.Proposal = proposal
			}

		case CreateReviewTasks:
			now := p.now().UTC()
			for _, category := range e.Categories {
				task := ReviewTask{
					ID:        uuid.New(),
					Repo:      event.Repo,
					PRNumber:  e.PRNumber,
					Category:  category,
					CreatedAt: now,
				}
				if err := p.tasks.Put(ctx, task); err != nil {
					return nil, dErrors.Wrap(dErrors.CodeInternal, "store review task", err)
				}
				outcome.Tasks = append(outcome.Tasks, task)
			}

		case PostComment:
			// Comment failures must not fail the webhook.
			if err := p.collab.Comment(ctx, event.Repo, e.PRNumber, e.Body); err != nil {
				p.logger.ErrorContext(ctx, "failed to post review comment",
					"repo", event.Repo,
					"pr", e.PRNumber,
					"error", err,
				)
			}

		case ApplyTrustDelta:
			if _, err := p.trust.Update(ctx, e.UID, e.Contribution); err != nil {
				// The credited identity can differ from the resolved actor
				// (a merge credits the PR author). An unknown credit target
				// is a gate outcome, not a transport error.
				if dErrors.HasCode(err, dErrors.CodeUnknownIdentity) {
					ev := event
					ev.Actor = e.UID
					return p.reject(ctx, ev, RejectUnknownIdentity, 0)
				}
				return nil, err
			}
		}
	}
	return outcome, nil
}

// createDeployment writes the pending record, ledgers it, and kicks off the
// async deploy. The record id is available to the caller immediately.
func (p *Pipeline) createDeployment(ctx context.Context, event LifecycleEvent, path DeploymentPath) (*DeploymentRecord, error) {
	now := p.now().UTC()
	rec := DeploymentRecord{
		ID:        uuid.New(),
		Repo:      event.Repo,
		Actor:     event.Actor,
		Ref:       event.Ref,
		Path:      path,
		Status:    DeployPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.deployments.Put(ctx, rec); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store deployment", err)
	}
	if _, err := p.ledger.Append(ctx, ledger.TypeDeployment, deploymentRecord{
		DeploymentID: rec.ID.String(),
		Repo:         rec.Repo,
		Actor:        rec.Actor,
		Ref:          rec.Ref,
		Path:         string(path),
		Status:       string(DeployPending),
	}); err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.DeploymentsCreated.WithLabelValues(string(path)).Inc()
	}

	p.wg.Add(1)
	go p.runDeploy(rec)
	return &rec, nil
}

// runDeploy drives pending → deploying → deployed|failed off the request
// path, retrying the collaborator with bounded backoff.
func (p *Pipeline) runDeploy(rec DeploymentRecord) {
	defer p.wg.Done()
	ctx := context.Background()

	rec.Status = DeployDeploying
	rec.UpdatedAt = p.now().UTC()
	if err := p.deployments.Put(ctx, rec); err != nil {
		p.logger.Error("failed to store deployment transition", "deployment_id", rec.ID.String(), "error", err)
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.cfg.BackoffInitial
	policy.MaxInterval = p.cfg.BackoffMax
	policy.MaxElapsedTime = 0

	var externalRef, url string
	err := backoff.Retry(func() error {
		var derr error
		externalRef, url, derr = p.deployer.Deploy(ctx, rec)
		return derr
	}, backoff.WithMaxRetries(policy, uint64(p.cfg.DeployAttempts-1)))

	rec.UpdatedAt = p.now().UTC()
	if err != nil {
		rec.Status = DeployFailed
		rec.Error = err.Error()
	} else {
		rec.Status = DeployDeployed
		rec.ExternalRef = externalRef
		rec.URL = url
	}
	if serr := p.deployments.Put(ctx, rec); serr != nil {
		p.logger.Error("failed to store deployment result", "deployment_id", rec.ID.String(), "error", serr)
	}

	entry := deploymentRecord{
		DeploymentID: rec.ID.String(),
		Repo:         rec.Repo,
		Actor:        rec.Actor,
		Ref:          rec.Ref,
		Path:         string(rec.Path),
		Status:       string(rec.Status),
		Error:        rec.Error,
	}
	if _, lerr := p.ledger.Append(ctx, ledger.TypeDeployment, entry); lerr != nil {
		p.logger.Error("failed to ledger deployment result", "deployment_id", rec.ID.String(), "error", lerr)
	}
	if rec.Status == DeployFailed {
		p.logger.Error("deployment failed after retries",
			"deployment_id", rec.ID.String(),
			"repo", rec.Repo,
			"error", rec.Error,
		)
	}
}

// Wait blocks until all in-flight deployments settle. Used in shutdown and
// tests.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// GetDeployment exposes deployment records for polling.
func (p *Pipeline) GetDeployment(ctx context.Context, id uuid.UUID) (*DeploymentRecord, error) {
	rec, err := p.deployments.Get(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load deployment", err)
	}
	if rec == nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "deployment %s does not exist", id)
	}
	return rec, nil
}
