// Package registry holds capability declarations: each app's registered claim
// of which intents it supports. The registry is the reference set the
// compliance engine uses to detect undeclared intents.
package registry

import (
	"time"

	"pinksync/pkg/domain"
)

// Status tracks declaration lifecycle. Deregistration is soft; records are
// never purged.
type Status string

const (
	StatusActive       Status = "active"
	StatusDeregistered Status = "deregistered"
)

// Declaration is an application's registered capability claim.
type Declaration struct {
	AppID        domain.AppID    `json:"app_id"`
	Capabilities []domain.Intent `json:"capabilities"`
	Level        domain.Level    `json:"compliance_level"`
	Version      string          `json:"version,omitempty"`
	Flags        []string        `json:"flags,omitempty"`
	Status       Status          `json:"status"`
	RegisteredAt time.Time       `json:"registered_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Supports reports whether the declaration covers the given intent.
func (d Declaration) Supports(intent domain.Intent) bool {
	for _, c := range d.Capabilities {
		if c == intent {
			return true
		}
	}
	return false
}

// HasFlag reports whether a qualitative flag was declared.
func (d Declaration) HasFlag(flag string) bool {
	for _, f := range d.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Filter selects declarations on Query. Empty fields match everything.
type Filter struct {
	AppID  domain.AppID
	Intent domain.Intent
	Level  domain.Level
}

// Matches applies the filter to a declaration.
func (f Filter) Matches(d Declaration) bool {
	if f.AppID != "" && f.AppID != d.AppID {
		return false
	}
	if f.Intent != "" && !d.Supports(f.Intent) {
		return false
	}
	if f.Level != "" && f.Level != d.Level {
		return false
	}
	return true
}
