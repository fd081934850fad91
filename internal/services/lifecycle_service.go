package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"time"

	"github.com/censusconnect/gatekeeper/internal/models"
	pkgauth "github.com/censusconnect/gatekeeper/pkg/auth"
	pkglogger "github.com/censusconnect/gatekeeper/pkg/logger"
)

// LifecycleAccountStore defines the account operations lifecycle
// management needs.
type LifecycleAccountStore interface {
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByActivationToken(ctx context.Context, token string) (*models.Account, error)
	GetByResetToken(ctx context.Context, token string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	ApplyPatch(ctx context.Context, id int64, patch *models.AccountPatch) (*models.Account, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	Delete(ctx context.Context, id int64) error
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
}

// SessionRevoker lets lifecycle operations revoke a user's sessions
// without depending on the full session service surface.
type SessionRevoker interface {
	InvalidateAllForUser(ctx context.Context, userID int64) (int64, error)
}

// LifecycleConfig holds account lifecycle configuration
type LifecycleConfig struct {
	ActivationTokenTTL time.Duration
	ResetTokenTTL      time.Duration
	BcryptCost         int
	AutoActivate       bool // skip email activation; accounts are born active
	StoreTimeout       time.Duration
}

// LifecycleService manages account registration, activation and password
// reset. Token consumption outcomes deliberately collapse "unknown token"
// and "expired token" into a plain false so callers cannot probe which.
type LifecycleService struct {
	accounts LifecycleAccountStore
	sessions SessionRevoker
	email    EmailSender
	config   LifecycleConfig
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(
	accounts LifecycleAccountStore,
	sessions SessionRevoker,
	email EmailSender,
	config LifecycleConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *LifecycleService {
	return &LifecycleService{
		accounts: accounts,
		sessions: sessions,
		email:    email,
		config:   config,
		logger:   logger,
		audit:    audit,
	}
}

func (s *LifecycleService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

// Register creates a new account. Unless auto-activation is on, the
// account starts inactive with a fresh activation token and the
// activation email is sent. Email delivery failures are logged but do
// not roll back the registration.
func (s *LifecycleService) Register(ctx context.Context, username, email, password string) (*models.AccountSummary, error) {
	if err := pkgauth.ValidateUsername(username); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, models.ErrBadRequest
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	taken, err := s.accounts.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, models.ErrStorageUnavailable
	}
	if taken {
		return nil, models.ErrConflict
	}

	hash, err := pkgauth.HashPassword(password, s.config.BcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account := &models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     s.config.AutoActivate,
	}

	var token string
	if !s.config.AutoActivate {
		token, err = pkgauth.NewToken()
		if err != nil {
			return nil, models.ErrInternalServer
		}
		now := time.Now()
		account.ActivationToken = &token
		account.ActivationTokenCreatedAt = &now
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		// Unique violation between the exists check and the insert.
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Any("error", err))
		return nil, models.ErrStorageUnavailable
	}

	s.audit.LogAccountAction("account_registered", created.ID, "", map[string]string{
		"username":      pkglogger.SanitizedUsername(created.Username),
		"auto_activate": boolString(s.config.AutoActivate),
	})

	if !s.config.AutoActivate {
		expiresAt := time.Now().Add(s.config.ActivationTokenTTL)
		if err := s.email.SendActivationEmail(ctx, created.Email, token, expiresAt); err != nil {
			s.logger.Error("failed to send activation email",
				slog.Int64("user_id", created.ID),
				slog.Any("error", err))
		}
	}

	return created.Summary(), nil
}

// IssueActivation mints a fresh activation token for an account,
// replacing any previous one, and sends the activation email. Already
// active accounts get nothing.
func (s *LifecycleService) IssueActivation(ctx context.Context, userID int64) (string, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrNotFound
		}
		return "", models.ErrStorageUnavailable
	}
	if account.IsActive {
		return "", models.ErrConflict
	}

	token, err := pkgauth.NewToken()
	if err != nil {
		return "", models.ErrInternalServer
	}
	now := time.Now()

	if _, err := s.accounts.ApplyPatch(ctx, account.ID, &models.AccountPatch{
		ActivationToken:          &token,
		ActivationTokenCreatedAt: &now,
	}); err != nil {
		return "", models.ErrStorageUnavailable
	}

	expiresAt := now.Add(s.config.ActivationTokenTTL)
	if err := s.email.SendActivationEmail(ctx, account.Email, token, expiresAt); err != nil {
		s.logger.Error("failed to send activation email",
			slog.Int64("user_id", account.ID),
			slog.Any("error", err))
	}

	s.audit.LogAccountAction("activation_issued", account.ID, "", nil)
	return token, nil
}

// activationAccount resolves an activation token to its account.
// Distinguishes unknown from expired so callers can log which; the
// public consume API collapses both.
func (s *LifecycleService) activationAccount(ctx context.Context, token string) (*models.Account, error) {
	account, err := s.accounts.GetByActivationToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenNotFound
		}
		return nil, models.ErrStorageUnavailable
	}
	if !account.IsActive && tokenExpired(account.ActivationTokenCreatedAt, s.config.ActivationTokenTTL) {
		return account, models.ErrTokenExpired
	}
	return account, nil
}

// ConsumeActivation activates the account the token belongs to. Unknown
// and expired tokens both report false. Consuming a token for an account
// that is already active reports true without changing anything, so
// double-clicking an activation link still looks like success.
func (s *LifecycleService) ConsumeActivation(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	account, err := s.activationAccount(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrTokenNotFound):
		return false, nil
	case errors.Is(err, models.ErrTokenExpired):
		s.logger.Info("expired activation token presented",
			slog.Int64("user_id", account.ID),
			slog.String("token_prefix", pkglogger.TokenPrefix(token)))
		return false, nil
	default:
		return false, err
	}

	if account.IsActive {
		return true, nil
	}

	active := true
	if _, err := s.accounts.ApplyPatch(ctx, account.ID, &models.AccountPatch{
		IsActive:             &active,
		ClearActivationToken: true,
	}); err != nil {
		return false, models.ErrStorageUnavailable
	}

	s.audit.LogAccountAction("account_activated", account.ID, "", nil)
	return true, nil
}

// IssueReset mints a password reset token for the account owning the
// email address and sends the reset email. Unknown addresses return an
// empty token with no error so the caller's response cannot reveal
// whether the address is registered.
func (s *LifecycleService) IssueReset(ctx context.Context, email string) (string, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", nil
		}
		return "", models.ErrStorageUnavailable
	}

	token, err := pkgauth.NewToken()
	if err != nil {
		return "", models.ErrInternalServer
	}
	now := time.Now()

	if _, err := s.accounts.ApplyPatch(ctx, account.ID, &models.AccountPatch{
		ResetPasswordToken:          &token,
		ResetPasswordTokenCreatedAt: &now,
	}); err != nil {
		return "", models.ErrStorageUnavailable
	}

	expiresAt := now.Add(s.config.ResetTokenTTL)
	if err := s.email.SendPasswordResetEmail(ctx, account.Email, token, expiresAt); err != nil {
		s.logger.Error("failed to send password reset email",
			slog.Int64("user_id", account.ID),
			slog.Any("error", err))
	}

	s.audit.LogAccountAction("password_reset_issued", account.ID, "", nil)
	return token, nil
}

// resetAccount resolves a reset token to its account, reporting
// ErrTokenNotFound or ErrTokenExpired for dead tokens.
func (s *LifecycleService) resetAccount(ctx context.Context, token string) (*models.Account, error) {
	account, err := s.accounts.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenNotFound
		}
		return nil, models.ErrStorageUnavailable
	}
	if tokenExpired(account.ResetPasswordTokenCreatedAt, s.config.ResetTokenTTL) {
		return account, models.ErrTokenExpired
	}
	return account, nil
}

// ConsumeReset sets a new password for the token's account. The new
// password must satisfy the password policy before the token is
// consumed; a policy failure leaves the token valid. All of the user's
// sessions are revoked on success.
func (s *LifecycleService) ConsumeReset(ctx context.Context, token, newPassword string) (bool, error) {
	if token == "" {
		return false, nil
	}
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return false, err
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	account, err := s.resetAccount(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrTokenNotFound):
		return false, nil
	case errors.Is(err, models.ErrTokenExpired):
		s.logger.Info("expired reset token presented",
			slog.Int64("user_id", account.ID),
			slog.String("token_prefix", pkglogger.TokenPrefix(token)))
		return false, nil
	default:
		return false, err
	}

	hash, err := pkgauth.HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return false, models.ErrStorageUnavailable
	}

	if _, err := s.sessions.InvalidateAllForUser(ctx, account.ID); err != nil {
		s.logger.Error("failed to revoke sessions after password reset",
			slog.Int64("user_id", account.ID),
			slog.Any("error", err))
	}

	s.audit.LogAccountAction("password_reset_completed", account.ID, "", nil)
	return true, nil
}

// ChangePassword sets a new password for an authenticated account after
// re-verifying the current one. The current password must match before
// the new one is even policy-checked. All of the user's sessions are
// revoked on success so stolen cookies do not outlive the old password.
func (s *LifecycleService) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrStorageUnavailable
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, currentPassword); err != nil {
		s.audit.LogAccountAction("password_change_rejected", account.ID, "", nil)
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return models.ErrStorageUnavailable
	}

	if _, err := s.sessions.InvalidateAllForUser(ctx, account.ID); err != nil {
		s.logger.Error("failed to revoke sessions after password change",
			slog.Int64("user_id", account.ID),
			slog.Any("error", err))
	}

	s.audit.LogAccountAction("password_changed", account.ID, "", nil)
	return nil
}

// DeleteAccount removes the account and revokes its sessions. Session,
// history and password rows cascade in the store.
func (s *LifecycleService) DeleteAccount(ctx context.Context, userID int64) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.sessions.InvalidateAllForUser(ctx, userID); err != nil {
		s.logger.Error("failed to revoke sessions before account deletion",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}

	if err := s.accounts.Delete(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrStorageUnavailable
	}

	s.audit.LogAccountAction("account_deleted", userID, "", nil)
	return nil
}

// GetSummary returns the non-sensitive view of an account
func (s *LifecycleService) GetSummary(ctx context.Context, userID int64) (*models.AccountSummary, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrStorageUnavailable
	}

	return account.Summary(), nil
}

func tokenExpired(createdAt *time.Time, ttl time.Duration) bool {
	if createdAt == nil {
		return true
	}
	return time.Since(*createdAt) > ttl
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
