package contract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"pinksync/internal/registry"
	"pinksync/pkg/domain"
)

// Registry is the slice of the capability registry the validator reads.
type Registry interface {
	Get(ctx context.Context, appID domain.AppID) (*registry.Declaration, error)
}

// Validator normalizes raw submissions. Checks run in a fixed order so the
// first violation reported is deterministic.
type Validator struct {
	registry Registry
	index    Index

	skewTolerance    time.Duration
	metadataMaxBytes int
	now              func() time.Time
}

type ValidatorOption func(*Validator)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

func NewValidator(reg Registry, index Index, skewTolerance time.Duration, metadataMaxBytes int, opts ...ValidatorOption) *Validator {
	v := &Validator{
		registry:         reg,
		index:            index,
		skewTolerance:    skewTolerance,
		metadataMaxBytes: metadataMaxBytes,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Result carries the normalized event plus, for byte-identical resubmissions,
// the previously accepted record so the caller can replay its receipt.
type Result struct {
	Event     Event
	Duplicate *SeenEvent
}

// Validate applies the contract checks in order: required fields, intent enum,
// timestamp window, metadata bound, level token, app registration, duplicate
// event_id. Returns a typed Violation on the first failure.
func (v *Validator) Validate(ctx context.Context, sub Submission) (*Result, *Violation, error) {
	if sub.AppID == "" {
		return nil, &Violation{Reason: ReasonMissingField, Message: "app_id is required"}, nil
	}
	if sub.Intent == "" {
		return nil, &Violation{Reason: ReasonMissingField, Message: "intent is required"}, nil
	}
	if sub.Timestamp.IsZero() {
		return nil, &Violation{Reason: ReasonMissingField, Message: "timestamp is required"}, nil
	}

	appID, err := domain.ParseAppID(sub.AppID)
	if err != nil {
		return nil, &Violation{Reason: ReasonInvalidField, Message: "app_id is malformed"}, nil
	}
	userID, err := domain.ParseUserID(sub.UserID)
	if err != nil {
		return nil, &Violation{Reason: ReasonInvalidField, Message: "user_id is malformed"}, nil
	}

	intent, err := domain.ParseIntent(sub.Intent)
	if err != nil {
		return nil, &Violation{Reason: ReasonUnknownIntent, Message: fmt.Sprintf("intent %q is not registered", sub.Intent)}, nil
	}

	now := v.now().UTC()
	ts := sub.Timestamp.UTC()
	if diff := now.Sub(ts); diff > v.skewTolerance || diff < -v.skewTolerance {
		return nil, &Violation{Reason: ReasonTimestampSkew, Message: "timestamp outside clock-skew tolerance"}, nil
	}

	if len(sub.Metadata) > v.metadataMaxBytes {
		return nil, &Violation{Reason: ReasonMetadataTooLarge, Message: fmt.Sprintf("metadata exceeds %d bytes", v.metadataMaxBytes)}, nil
	}

	var level domain.Level
	if sub.ComplianceLevel != "" {
		level, err = domain.ParseLevel(sub.ComplianceLevel)
		if err != nil {
			return nil, &Violation{Reason: ReasonInvalidLevel, Message: fmt.Sprintf("compliance_level %q is not a valid token", sub.ComplianceLevel)}, nil
		}
	}

	// Capability registrations enter via the registry surface and write their
	// own ledger entry; every event here must come from a registered app.
	declaration, err := v.registry.Get(ctx, appID)
	if err != nil {
		return nil, nil, err
	}
	if declaration == nil || declaration.Status != registry.StatusActive {
		return nil, &Violation{Reason: ReasonUnregisteredApp, Message: fmt.Sprintf("app %s has no active capability declaration", appID)}, nil
	}
	if ts.Before(declaration.RegisteredAt) {
		return nil, &Violation{Reason: ReasonBeforeRegistration, Message: "timestamp precedes app registration"}, nil
	}

	event := Event{
		EventID:   sub.EventID,
		AppID:     appID,
		UserID:    userID,
		Intent:    intent,
		Timestamp: ts,
		Metadata:  sub.Metadata,
		Level:     level,
	}
	event.PayloadSum = payloadSum(event)

	if sub.EventID != "" {
		seen, err := v.index.Lookup(ctx, sub.EventID)
		if err != nil {
			return nil, nil, err
		}
		if seen != nil {
			if seen.PayloadSum == event.PayloadSum {
				return &Result{Event: event, Duplicate: seen}, nil, nil
			}
			return nil, &Violation{Reason: ReasonConflictingDuplicate, Message: fmt.Sprintf("event_id %s was accepted with a different payload", sub.EventID)}, nil
		}
	}

	return &Result{Event: event}, nil, nil
}

// canonicalEvent is the deterministic form digested for duplicate comparison.
type canonicalEvent struct {
	AppID     string          `json:"app_id"`
	UserID    string          `json:"user_id"`
	Intent    string          `json:"intent"`
	Timestamp string          `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata"`
	Level     string          `json:"level"`
}

func payloadSum(e Event) string {
	canonical, _ := json.Marshal(canonicalEvent{
		AppID:     e.AppID.String(),
		UserID:    e.UserID.String(),
		Intent:    e.Intent.String(),
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Metadata:  e.Metadata,
		Level:     e.Level.String(),
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
