// Package subscription fans accepted accessibility events out to registered
// consumers. Publication is non-blocking for the event intake path; each
// subscription gets its own FIFO queue and delivery worker.
package subscription

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pinksync/internal/contract"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// Status tracks subscription lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Filter selects which events a subscription receives. An empty dimension
// matches everything on that dimension.
type Filter struct {
	AppIDs  []domain.AppID  `json:"app_ids,omitempty"`
	Intents []domain.Intent `json:"intents,omitempty"`
	Levels  []domain.Level  `json:"compliance_levels,omitempty"`
}

// Validate rejects filters containing unknown enum members.
func (f Filter) Validate() error {
	for _, i := range f.Intents {
		if !i.IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown intent %q in filter", i)
		}
	}
	for _, l := range f.Levels {
		if !l.IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unknown compliance_level %q in filter", l)
		}
	}
	return nil
}

// Matches applies the filter to a normalized event.
func (f Filter) Matches(e contract.Event) bool {
	if len(f.AppIDs) > 0 && !containsApp(f.AppIDs, e.AppID) {
		return false
	}
	if len(f.Intents) > 0 && !containsIntent(f.Intents, e.Intent) {
		return false
	}
	if len(f.Levels) > 0 && !containsLevel(f.Levels, e.Level) {
		return false
	}
	return true
}

// Key is the canonical form used to detect duplicate subscriptions for one
// consumer. Member order does not matter.
func (f Filter) Key() string {
	apps := make([]string, len(f.AppIDs))
	for i, a := range f.AppIDs {
		apps[i] = a.String()
	}
	intents := make([]string, len(f.Intents))
	for i, in := range f.Intents {
		intents[i] = in.String()
	}
	levels := make([]string, len(f.Levels))
	for i, l := range f.Levels {
		levels[i] = l.String()
	}
	sort.Strings(apps)
	sort.Strings(intents)
	sort.Strings(levels)
	return strings.Join(apps, ",") + "|" + strings.Join(intents, ",") + "|" + strings.Join(levels, ",")
}

func containsApp(s []domain.AppID, v domain.AppID) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsIntent(s []domain.Intent, v domain.Intent) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsLevel(s []domain.Level, v domain.Level) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Subscription is one consumer's registered interest. Endpoint is the
// callback URL events are pushed to. A nil ExpiresAt means the subscription
// lives until cancelled.
type Subscription struct {
	ID         uuid.UUID         `json:"id"`
	ConsumerID domain.ConsumerID `json:"consumer_id"`
	Endpoint   string            `json:"endpoint"`
	Filter     Filter            `json:"filter"`
	Status     Status            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

func (s Subscription) expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}
