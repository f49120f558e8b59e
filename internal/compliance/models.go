// Package compliance derives Bronze/Silver/Gold/Platinum status from the
// registry, event history, and violation pressure. Promotion requires an
// audit; demotion is driven by violations alone.
package compliance

import (
	"time"

	"pinksync/pkg/domain"
)

// Severity classifies violations.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Violation records one compliance failure for an app.
type Violation struct {
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
}

// Record is the materialized compliance state for one app. It must remain
// derivable from the ledger; this struct is a projection, not the truth.
type Record struct {
	AppID        domain.AppID
	CurrentLevel domain.Level
	Violations   []Violation
	EventsCount  int64

	// Rolling monthly volume used by audit thresholds.
	MonthlyEvents int64
	MonthlyStart  time.Time

	LastAudit    *time.Time
	NextAuditDue *time.Time
}

// criticalsSince counts critical violations at or after the cutoff.
func (r *Record) criticalsSince(cutoff time.Time) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical && !v.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n
}

// warningsSince counts warning violations at or after the cutoff.
func (r *Record) warningsSince(cutoff time.Time) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityWarning && !v.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n
}

// Report is the external compliance view.
type Report struct {
	AppID          domain.AppID `json:"app_id"`
	Level          domain.Level `json:"compliance_level"`
	Status         string       `json:"status"`
	LastAudit      *time.Time   `json:"last_audit,omitempty"`
	NextAuditDue   *time.Time   `json:"next_audit_due,omitempty"`
	EventsCount    int64        `json:"events_count"`
	Violations     []Violation  `json:"violations,omitempty"`
	CertificateURL string       `json:"certificate_url,omitempty"`
}
