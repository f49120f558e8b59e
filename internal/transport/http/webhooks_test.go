package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinksync/internal/automation"
	"pinksync/internal/ledger"
	"pinksync/internal/trust"
	dErrors "pinksync/pkg/domain-errors"
)

type fakeIdentities struct {
	scores map[string]int64
}

func (f *fakeIdentities) Resolve(_ context.Context, uid string) (*trust.Identity, error) {
	score, ok := f.scores[uid]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnknownIdentity, "identity %s is not registered", uid)
	}
	return &trust.Identity{UID: uid, TrustScore: score}, nil
}

func (f *fakeIdentities) Update(_ context.Context, uid string, _ trust.Contribution) (*trust.Identity, error) {
	return &trust.Identity{UID: uid}, nil
}

func newWebhooksRouter(t *testing.T) (http.Handler, *automation.Pipeline) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led, err := ledger.NewService(context.Background(), ledger.NewInMemoryStore(), logger)
	require.NoError(t, err)

	identities := &fakeIdentities{scores: map[string]int64{"trusted-dev": 85}}
	governance := automation.NewGovernance(
		automation.NewInMemoryProposalStore(), led, logger, 7*24*time.Hour,
	)
	pipeline := automation.NewPipeline(
		identities, identities,
		automation.NewInMemoryDeploymentStore(),
		automation.NewInMemoryTaskStore(),
		governance, led,
		automation.NewLogDeployer(logger),
		automation.NewLogCollaborator(logger),
		logger,
		automation.PipelineConfig{
			TrustThreshold:  70,
			ProtectedBranch: "main",
			GovernanceMajor: 1,
			DeployAttempts:  1,
			BackoffInitial:  time.Millisecond,
			BackoffMax:      time.Millisecond,
		},
	)
	t.Cleanup(pipeline.Wait)

	r := chi.NewRouter()
	NewWebhooksHandler(pipeline, logger).Register(r)
	return r, pipeline
}

func TestHandleLifecycle_IgnoresUnknownPayloadFields(t *testing.T) {
	router, pipeline := newWebhooksRouter(t)

	// A realistic host payload: the fields the pipeline reads plus plenty it
	// does not.
	body := []byte(`{
		"kind": "push",
		"repo": "pinksync/deaf-first-app",
		"actor": "trusted-dev",
		"ref": "refs/heads/feature/captions",
		"commits": [{"id": "abc123", "message": "add captions toggle", "url": "https://host.example/c/abc123"}],
		"sender": {"login": "trusted-dev", "id": 12345},
		"created_at": "2026-06-15T09:30:00Z",
		"delivery_guid": "d-77210"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/repository", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	pipeline.Wait()

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var outcome automation.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.True(t, outcome.Accepted)
	require.NotNil(t, outcome.Deployment)
	assert.Equal(t, automation.PathPreview, outcome.Deployment.Path)
}

func TestHandleLifecycle_MalformedBodyReturns400(t *testing.T) {
	router, _ := newWebhooksRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/repository", bytes.NewReader([]byte(`{"kind": `)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLifecycle_GateRejectionIs200(t *testing.T) {
	router, _ := newWebhooksRouter(t)

	body := []byte(`{
		"kind": "push",
		"repo": "pinksync/deaf-first-app",
		"actor": "ghost-dev",
		"ref": "refs/heads/main",
		"installation": {"id": 9}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/repository", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var outcome automation.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.False(t, outcome.Accepted)
	assert.Equal(t, automation.RejectUnknownIdentity, outcome.Reason)
}
