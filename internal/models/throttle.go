package models

import "time"

// ThrottleRule is read-only per-endpoint configuration. An endpoint with
// no rule is unmetered by deliberate opt-out.
type ThrottleRule struct {
	Endpoint        string
	MaxAttempts     int
	TimeWindow      int // seconds
	LockoutDuration int // seconds; advisory, recorded for operators only
}

// Window returns the sliding window as a duration.
func (r *ThrottleRule) Window() time.Duration {
	return time.Duration(r.TimeWindow) * time.Second
}

// ThrottleLogEntry is one append-only row per metered check, recording
// the decision taken. The entry counts toward future window decisions.
type ThrottleLogEntry struct {
	IPAddress string
	Endpoint  string
	Timestamp time.Time
	IsBlocked bool
}

// ThrottleStatus is the read-only answer to a rate-limit status query.
// Remaining and ResetSeconds are both -1 when the endpoint has no rule.
type ThrottleStatus struct {
	Remaining    int `json:"remaining"`
	ResetSeconds int `json:"reset_seconds"`
}

// NoThrottleStatus is the sentinel for unmetered endpoints.
var NoThrottleStatus = ThrottleStatus{Remaining: -1, ResetSeconds: -1}
