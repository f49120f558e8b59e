package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pinksync/internal/platform/metrics"
	"pinksync/internal/platform/middleware"
	"pinksync/internal/ratelimit"
)

// RouterDeps collects everything the HTTP surface needs. Handlers stay thin;
// all policy lives in the services behind them.
type RouterDeps struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	JWTValidator middleware.JWTValidator
	RateLimit    *ratelimit.Middleware

	Events        *EventsHandler
	Capabilities  *CapabilitiesHandler
	Subscriptions *SubscriptionsHandler
	Compliance    *ComplianceHandler
	Trust         *TrustHandler
	Webhooks      *WebhooksHandler
	Governance    *GovernanceHandler
	Ledger        *LedgerHandler
}

// NewRouter assembles the full route tree.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	if deps.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(deps.Metrics))
	}

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		// Intake surface: rate limited, no auth; apps authenticate with
		// their registered identity inside the payload.
		v1.Group(func(open chi.Router) {
			open.Use(middleware.ContentTypeJSON)
			if deps.RateLimit != nil {
				open.Use(deps.RateLimit.Handler)
			}
			deps.Events.Register(open)
		})

		v1.Group(func(open chi.Router) {
			deps.Capabilities.Register(open)
			deps.Compliance.Register(open)
			deps.Webhooks.Register(open)
			deps.Governance.Register(open)
			deps.Ledger.Register(open)
			deps.Trust.Register(open)
		})

		// Consumer surface: the subscription owner comes from the token.
		v1.Group(func(authed chi.Router) {
			authed.Use(middleware.RequireAuth(deps.JWTValidator, deps.Logger))
			deps.Subscriptions.Register(authed)
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
