package services

import (
	"context"

	"github.com/censusconnect/gatekeeper/internal/models"
)

// Core bundles the four subsystem services and implements the composite
// flows that span more than one of them.
type Core struct {
	Throttle    *ThrottleService
	Credentials *CredentialService
	Sessions    *SessionService
	Lifecycle   *LifecycleService
}

// NewCore creates the service façade
func NewCore(throttle *ThrottleService, credentials *CredentialService, sessions *SessionService, lifecycle *LifecycleService) *Core {
	return &Core{
		Throttle:    throttle,
		Credentials: credentials,
		Sessions:    sessions,
		Lifecycle:   lifecycle,
	}
}

// Login runs the full authentication flow: throttle check, credential
// verification, session creation. The throttle is consulted first so a
// blocked client learns nothing about the credentials it submitted.
func (c *Core) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*models.AccountSummary, string, error) {
	allowed, err := c.Throttle.Check(ctx, ipAddress, "login")
	if err != nil {
		return nil, "", err
	}
	if !allowed {
		return nil, "", models.ErrRateLimited
	}

	summary, err := c.Credentials.Verify(ctx, username, password, ipAddress, userAgent)
	if err != nil {
		return nil, "", err
	}

	token, err := c.Sessions.Create(ctx, summary.ID, ipAddress, userAgent)
	if err != nil {
		return nil, "", err
	}

	return summary, token, nil
}

// Logout revokes the presented session token. Idempotent.
func (c *Core) Logout(ctx context.Context, token string) (bool, error) {
	return c.Sessions.Invalidate(ctx, token)
}
