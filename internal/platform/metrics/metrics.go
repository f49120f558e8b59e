package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the broker.
type Metrics struct {
	EventsAccepted      prometheus.Counter
	EventsRejected      *prometheus.CounterVec
	LedgerEntries       prometheus.Counter
	MirrorFailures      prometheus.Counter
	Deliveries          prometheus.Counter
	DeliveryFailures    prometheus.Counter
	TrustUpdates        prometheus.Counter
	DeploymentsCreated  *prometheus.CounterVec
	AutomationRejected  *prometheus.CounterVec
	ProposalsCreated    prometheus.Counter
	RequestLatency      *prometheus.HistogramVec
	ActiveSubscriptions prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EventsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pinksync_events_accepted_total",
			Help: "Total accessibility events accepted into the ledger",
		}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pinksync_events_rejected_total",
			Help: "Total accessibility events rejected, by violation reason",
		}, []string{"reason"}),
		LedgerEntries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pinksync_ledger_entries_total",
			Help: "Total entries appended to the audit ledger",
		}),
		MirrorFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pinksync_ledger_mirror_failures_total",
			Help: "Total ledger entries that exhausted mirror retries",
		}),
		Deliveries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pinksync_deliveries_total",
			Help: "Total successful subscription deliveries",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pinksync_delivery_failures_total",
			Help: "Total deliveries that exhausted retries",
		}),
		TrustUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pinksync_trust_updates_total",
			Help: "Total trust score updates applied",
		}),
		DeploymentsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pinksync_deployments_total",
			Help: "Deployment records created, by path",
		}, []string{"path"}),
		AutomationRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pinksync_automation_rejected_total",
			Help: "Lifecycle events rejected by the gate, by reason",
		}, []string{"reason"}),
		ProposalsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pinksync_governance_proposals_total",
			Help: "Governance proposals created",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pinksync_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pinksync_active_subscriptions",
			Help: "Currently active subscriptions",
		}),
	}
}
