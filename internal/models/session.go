package models

import "time"

// Session is a server-side login session keyed by its opaque token. The
// (ip, user agent) fingerprint is captured at creation and must match
// exactly on every verification.
type Session struct {
	Token     string
	UserID    int64
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time
}

// IsExpired reports whether the session TTL has passed.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Usable reports whether the session may authenticate the given fingerprint.
func (s *Session) Usable(now time.Time, ipAddress, userAgent string) bool {
	return s.IsActive && !s.IsExpired(now) &&
		s.IPAddress == ipAddress && s.UserAgent == userAgent
}
