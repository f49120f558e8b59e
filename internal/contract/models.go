// Package contract normalizes and rejects malformed inbound accessibility
// events before anything touches the ledger.
package contract

import (
	"encoding/json"
	"time"

	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// Submission is the raw inbound event payload. EventID is an optional
// client-supplied idempotency key; the broker generates one when absent.
type Submission struct {
	EventID         string          `json:"event_id,omitempty"`
	AppID           string          `json:"app_id"`
	UserID          string          `json:"user_id,omitempty"`
	Intent          string          `json:"intent"`
	Timestamp       time.Time       `json:"timestamp"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	ComplianceLevel string          `json:"compliance_level,omitempty"`
}

// Event is a normalized, validated accessibility event. Immutable once
// accepted.
type Event struct {
	EventID    string
	AppID      domain.AppID
	UserID     domain.UserID
	Intent     domain.Intent
	Timestamp  time.Time
	Metadata   json.RawMessage
	Level      domain.Level // optional; empty when not supplied
	PayloadSum string       // canonical digest, used for duplicate comparison
}

// ViolationReason is the machine-readable contract violation taxonomy.
type ViolationReason string

const (
	ReasonMissingField         ViolationReason = "missing_field"
	ReasonInvalidField         ViolationReason = "invalid_field"
	ReasonUnknownIntent        ViolationReason = "unknown_intent"
	ReasonTimestampSkew        ViolationReason = "timestamp_skew"
	ReasonBeforeRegistration   ViolationReason = "before_registration"
	ReasonMetadataTooLarge     ViolationReason = "metadata_too_large"
	ReasonInvalidLevel         ViolationReason = "invalid_level"
	ReasonConflictingDuplicate ViolationReason = "conflicting_duplicate"
	ReasonUnregisteredApp      ViolationReason = "unregistered_app"
)

// Violation is a typed contract violation. It is a policy outcome, not an
// infrastructure error.
type Violation struct {
	Reason  ViolationReason
	Message string
}

func (v *Violation) Error() string {
	return string(v.Reason) + ": " + v.Message
}

// DomainCode maps the violation onto the transport error taxonomy.
func (v *Violation) DomainCode() dErrors.Code {
	switch v.Reason {
	case ReasonConflictingDuplicate:
		return dErrors.CodeConflict
	case ReasonUnregisteredApp:
		return dErrors.CodeUnregisteredApp
	default:
		return dErrors.CodeInvalidInput
	}
}
