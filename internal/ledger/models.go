// Package ledger implements the append-only, hash-chained audit ledger. Every
// state-changing operation in the broker writes through it; all other stores
// are projections that must remain derivable from the chain.
package ledger

import (
	"encoding/json"
	"time"
)

// EntryType classifies what a ledger entry records.
type EntryType string

const (
	TypeEventAccepted       EntryType = "event_accepted"
	TypeEventRejected       EntryType = "event_rejected"
	TypeRegistration        EntryType = "registration"
	TypeDeregistration      EntryType = "deregistration"
	TypeComplianceAudit     EntryType = "compliance_audit"
	TypeViolation           EntryType = "violation"
	TypeLevelChanged        EntryType = "level_changed"
	TypeSubscriptionCreated EntryType = "subscription_created"
	TypeSubscriptionExpired EntryType = "subscription_expired"
	TypeDeliveryFailed      EntryType = "delivery_failed"
	TypeTrustUpdate         EntryType = "trust_update"
	TypeDeployment          EntryType = "deployment"
	TypeGovernanceProposal  EntryType = "governance_proposal"
	TypeGovernanceVote      EntryType = "governance_vote"
	TypeGovernanceResolved  EntryType = "governance_resolved"
	TypeAutomationRejected  EntryType = "automation_rejected"
)

// MirrorStatus tracks the best-effort replication of an entry to the external
// ledger. It is independent of the local commit.
type MirrorStatus string

const (
	MirrorPending  MirrorStatus = "pending"
	MirrorMirrored MirrorStatus = "mirrored"
	MirrorFailed   MirrorStatus = "failed"
)

// Entry is one link in the hash chain.
//
// Invariant: EntryHash = SHA-256(PrevHash ‖ Type ‖ Payload). Payloads must be
// structs with fixed field order (never maps) so json.Marshal is deterministic
// and hashes are reproducible on replay.
type Entry struct {
	Seq          uint64          `json:"seq"`
	PrevHash     string          `json:"prev_hash"`
	EntryHash    string          `json:"entry_hash"`
	Type         EntryType       `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	MirrorStatus MirrorStatus    `json:"mirror_status"`
	RecordedAt   time.Time       `json:"recorded_at"`
}
