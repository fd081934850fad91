package models

import "time"

// Failure reasons recorded in the login history audit log.
const (
	FailureUserNotFound    = "User not found"
	FailureAccountLocked   = "Account locked"
	FailureInvalidPassword = "Invalid password"
	FailureNotActivated    = "Account not activated"
)

// LoginHistoryEntry is one append-only audit record per verification
// attempt. UserID is nil when the username did not resolve to an account.
type LoginHistoryEntry struct {
	ID            string    `json:"id"`
	UserID        *int64    `json:"user_id,omitempty"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	Successful    bool      `json:"successful"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
