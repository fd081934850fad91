package models

import "time"

// Account is a user account row. Token and lockout fields are nullable in
// the store and modelled as pointers.
type Account struct {
	ID                          int64
	Username                    string
	Email                       string
	PasswordHash                string
	IsActive                    bool
	ActivationToken             *string
	ActivationTokenCreatedAt    *time.Time
	ResetPasswordToken          *string
	ResetPasswordTokenCreatedAt *time.Time
	FailedLoginAttempts         int
	AccountLockedUntil          *time.Time
	LastFailedLogin             *time.Time
	LastLogin                   *time.Time
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// IsLocked reports whether the account is under a lockout that has not
// yet expired. A lockout timestamp in the past is irrelevant.
func (a *Account) IsLocked(now time.Time) bool {
	return a.AccountLockedUntil != nil && now.Before(*a.AccountLockedUntil)
}

// AccountSummary is the slice of account state a caller needs after a
// successful credential verification to mint a session.
type AccountSummary struct {
	ID                   int64  `json:"id"`
	Username             string `json:"username"`
	Email                string `json:"email"`
	IsActive             bool   `json:"is_active"`
	PendingActivation    bool   `json:"pending_activation"`
	PendingPasswordReset bool   `json:"pending_password_reset"`
}

// Summary projects the account into its caller-facing summary.
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:                   a.ID,
		Username:             a.Username,
		Email:                a.Email,
		IsActive:             a.IsActive,
		PendingActivation:    a.ActivationToken != nil,
		PendingPasswordReset: a.ResetPasswordToken != nil,
	}
}

// AccountPatch lists the account fields a mutation may change. Nil fields
// are left untouched; the Clear* flags null out their token/lock columns.
// Translating this to a single static UPDATE keeps the set of updatable
// fields enumerable instead of string-building queries.
type AccountPatch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	IsActive     *bool

	ActivationToken          *string
	ActivationTokenCreatedAt *time.Time
	ClearActivationToken     bool

	ResetPasswordToken          *string
	ResetPasswordTokenCreatedAt *time.Time
	ClearResetPasswordToken     bool

	FailedLoginAttempts *int
	AccountLockedUntil  *time.Time
	ClearAccountLock    bool

	LastLogin       *time.Time
	LastFailedLogin *time.Time
}

// IsZero reports whether the patch would change nothing.
func (p *AccountPatch) IsZero() bool {
	return p.Username == nil && p.Email == nil && p.PasswordHash == nil &&
		p.IsActive == nil &&
		p.ActivationToken == nil && p.ActivationTokenCreatedAt == nil && !p.ClearActivationToken &&
		p.ResetPasswordToken == nil && p.ResetPasswordTokenCreatedAt == nil && !p.ClearResetPasswordToken &&
		p.FailedLoginAttempts == nil && p.AccountLockedUntil == nil && !p.ClearAccountLock &&
		p.LastLogin == nil && p.LastFailedLogin == nil
}
