package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Verification outcomes
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is not activated")

	// Abuse control
	ErrRateLimited = errors.New("rate limit exceeded")

	// Sessions: expiry and fingerprint mismatch are deliberately merged,
	// callers treat both as "never logged in"
	ErrSessionInvalid = errors.New("session invalid or expired")

	// Lifecycle tokens
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")

	// Storage failures are converted to this at component boundaries;
	// security decisions fail closed when it appears
	ErrStorageUnavailable = errors.New("storage unavailable")
)
