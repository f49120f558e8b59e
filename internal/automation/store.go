package automation

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DeploymentStore persists deployment records.
type DeploymentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*DeploymentRecord, error)
	Put(ctx context.Context, rec DeploymentRecord) error
	List(ctx context.Context) ([]DeploymentRecord, error)
}

type InMemoryDeploymentStore struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]DeploymentRecord
}

func NewInMemoryDeploymentStore() *InMemoryDeploymentStore {
	return &InMemoryDeploymentStore{recs: make(map[uuid.UUID]DeploymentRecord)}
}

func (s *InMemoryDeploymentStore) Get(_ context.Context, id uuid.UUID) (*DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *InMemoryDeploymentStore) Put(_ context.Context, rec DeploymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *InMemoryDeploymentStore) List(_ context.Context) ([]DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeploymentRecord, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ProposalStore persists governance proposals.
type ProposalStore interface {
	Get(ctx context.Context, id uuid.UUID) (*GovernanceProposal, error)
	Put(ctx context.Context, p GovernanceProposal) error
	ListOpen(ctx context.Context) ([]GovernanceProposal, error)
	FindByRelease(ctx context.Context, repo, tag string) (*GovernanceProposal, error)
}

type InMemoryProposalStore struct {
	mu        sync.RWMutex
	proposals map[uuid.UUID]GovernanceProposal
}

func NewInMemoryProposalStore() *InMemoryProposalStore {
	return &InMemoryProposalStore{proposals: make(map[uuid.UUID]GovernanceProposal)}
}

func (s *InMemoryProposalStore) Get(_ context.Context, id uuid.UUID) (*GovernanceProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryProposalStore) Put(_ context.Context, p GovernanceProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = p
	return nil
}

func (s *InMemoryProposalStore) ListOpen(_ context.Context) ([]GovernanceProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []GovernanceProposal
	for _, p := range s.proposals {
		if p.Status == ProposalActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FindByRelease returns the newest proposal gating one release, or nil.
func (s *InMemoryProposalStore) FindByRelease(_ context.Context, repo, tag string) (*GovernanceProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *GovernanceProposal
	for _, p := range s.proposals {
		if p.Repo != repo || p.Tag != tag {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			cp := p
			found = &cp
		}
	}
	return found, nil
}

// TaskStore persists review tasks.
type TaskStore interface {
	Put(ctx context.Context, task ReviewTask) error
	ListByPR(ctx context.Context, repo string, prNumber int) ([]ReviewTask, error)
}

type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks []ReviewTask
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{}
}

func (s *InMemoryTaskStore) Put(_ context.Context, task ReviewTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *InMemoryTaskStore) ListByPR(_ context.Context, repo string, prNumber int) ([]ReviewTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ReviewTask
	for _, t := range s.tasks {
		if t.Repo == repo && t.PRNumber == prNumber {
			out = append(out, t)
		}
	}
	return out, nil
}
