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

	"pinksync/internal/broker"
	"pinksync/internal/contract"
	"pinksync/internal/ledger"
	"pinksync/internal/registry"
	"pinksync/pkg/domain"
)

var testNow = time.Date(2026, 6, 15, 9, 30, 0, 0, time.UTC)

type fakeRegistry struct {
	declarations map[domain.AppID]*registry.Declaration
}

func (f *fakeRegistry) Get(_ context.Context, appID domain.AppID) (*registry.Declaration, error) {
	return f.declarations[appID], nil
}

type noopCompliance struct{}

func (noopCompliance) NoteEvent(context.Context, domain.AppID, domain.Intent) error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, contract.Event) {}

func newEventsRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led, err := ledger.NewService(context.Background(), ledger.NewInMemoryStore(), logger)
	require.NoError(t, err)

	reg := &fakeRegistry{declarations: map[domain.AppID]*registry.Declaration{
		"health-portal-v2": {
			AppID:        "health-portal-v2",
			Capabilities: []domain.Intent{domain.IntentVisualOnly},
			Level:        domain.LevelGold,
			Status:       registry.StatusActive,
			RegisteredAt: testNow.Add(-30 * 24 * time.Hour),
		},
	}}
	index := contract.NewInMemoryIndex()
	validator := contract.NewValidator(reg, index, 5*time.Minute, 8192,
		contract.WithClock(func() time.Time { return testNow }))
	svc := broker.NewService(validator, index, led, noopCompliance{}, noopPublisher{},
		[]byte("test-key"), logger)

	r := chi.NewRouter()
	NewEventsHandler(svc, logger).Register(r)
	return r
}

func submitJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func goldEvent() map[string]any {
	return map[string]any{
		"event_id":         "evt-1",
		"app_id":           "health-portal-v2",
		"intent":           "visual_only",
		"timestamp":        testNow.Add(-time.Minute).Format(time.RFC3339),
		"compliance_level": "gold",
	}
}

func TestHandleSubmit_Returns201WithReceipt(t *testing.T) {
	router := newEventsRouter(t)

	rec := submitJSON(t, router, "/events", goldEvent())
	assert.Equal(t, http.StatusCreated, rec.Code)

	var receipt broker.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, broker.StatusAccepted, receipt.Status)
	assert.NotEmpty(t, receipt.Signature)
	assert.Equal(t, uint64(1), receipt.LedgerID)
}

func TestHandleSubmit_UnregisteredAppReturns400(t *testing.T) {
	router := newEventsRouter(t)

	event := goldEvent()
	event["app_id"] = "ghost-app"
	rec := submitJSON(t, router, "/events", event)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var receipt broker.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, broker.StatusRejected, receipt.Status)
	assert.Equal(t, string(contract.ReasonUnregisteredApp), receipt.Reason)
}

func TestHandleSubmit_ConflictingDuplicateReturns409(t *testing.T) {
	router := newEventsRouter(t)

	rec := submitJSON(t, router, "/events", goldEvent())
	require.Equal(t, http.StatusCreated, rec.Code)

	conflicting := goldEvent()
	conflicting["metadata"] = map[string]string{"extra": "field"}
	rec = submitJSON(t, router, "/events", conflicting)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleSubmitBatch_ReportsMixedOutcomes(t *testing.T) {
	router := newEventsRouter(t)

	bad := goldEvent()
	bad["event_id"] = "evt-2"
	bad["intent"] = "audio_only"
	rec := submitJSON(t, router, "/events/batch", map[string]any{
		"events": []map[string]any{goldEvent(), bad},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Accepted int `json:"accepted"`
		Rejected int `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)
}

func TestHandleEventTypes_ListsTaxonomy(t *testing.T) {
	router := newEventsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/events/types", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Intents []string `json:"intents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Intents, 8)
	assert.Contains(t, resp.Intents, "sign_language")
}
