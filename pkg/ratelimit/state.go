// Package ratelimit implements the quota governor consulted before every
// outbound request. It reads the remaining-quota and reset headers of each
// response and, when the quota falls to a configured floor, pauses the caller
// until the reset instant.
package ratelimit

import (
	"time"
)

// Default header names carrying quota information.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Bounds for the quota floor.
const (
	// MinRateLimit is the default floor: at or below this remaining quota the
	// governor acts.
	MinRateLimit = 10

	// MaxRateLimit caps the configurable floor.
	MaxRateLimit = 500
)

// RateState is the quota snapshot taken from the most recent response.
// A new observation replaces the previous snapshot entirely.
type RateState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is the instant the window resets. Zero when the response did
	// not carry a usable reset signal.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this snapshot was taken.
	LastUpdate time.Time `json:"last_update"`
}

// HasReset reports whether a reset instant is known.
func (s *RateState) HasReset() bool {
	return !s.ResetAt.IsZero()
}

// IsLow reports whether the remaining quota is at or below floor.
func (s *RateState) IsLow(floor int) bool {
	return s.Remaining <= floor
}

// IsStale returns true if the snapshot is older than maxAge.
func (s *RateState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// TimeUntilReset returns max(0, ResetAt - now).
func (s *RateState) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
