// Package domain holds the typed identifiers and enumerations shared across
// the broker. Values are constructed via Parse* at trust boundaries; direct
// casting bypasses validation.
package domain

import (
	"regexp"

	dErrors "pinksync/pkg/domain-errors"
)

// idPattern is the shared shape for externally supplied identifiers.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// AppID identifies an application that emits accessibility events.
// Invariant: 3..64 chars matching ^[a-zA-Z0-9_-]+$.
type AppID string

// ParseAppID constructs an AppID from external input.
func ParseAppID(s string) (AppID, error) {
	if len(s) < 3 || len(s) > 64 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "app_id must be 3-64 characters")
	}
	if !idPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "app_id contains invalid characters")
	}
	return AppID(s), nil
}

func (a AppID) String() string { return string(a) }

// UserID identifies an end user on an event. Optional; empty means anonymous.
// Invariant: at most 128 chars matching ^[a-zA-Z0-9_-]+$ when present.
type UserID string

// ParseUserID constructs a UserID from external input. Empty input is valid
// and yields the zero value.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return "", nil
	}
	if len(s) > 128 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user_id exceeds 128 characters")
	}
	if !idPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user_id contains invalid characters")
	}
	return UserID(s), nil
}

func (u UserID) String() string { return string(u) }

// ConsumerID identifies a downstream consumer holding subscriptions.
type ConsumerID string

// ParseConsumerID constructs a ConsumerID from external input.
func ParseConsumerID(s string) (ConsumerID, error) {
	if len(s) < 3 || len(s) > 64 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "consumer_id must be 3-64 characters")
	}
	if !idPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "consumer_id contains invalid characters")
	}
	return ConsumerID(s), nil
}

func (c ConsumerID) String() string { return string(c) }
