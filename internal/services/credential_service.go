package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/censusconnect/gatekeeper/internal/auth"
	"github.com/censusconnect/gatekeeper/internal/models"
	pkgauth "github.com/censusconnect/gatekeeper/pkg/auth"
	pkglogger "github.com/censusconnect/gatekeeper/pkg/logger"
)

// CredentialAccountStore defines the account operations credential
// verification needs.
type CredentialAccountStore interface {
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	RecordFailedAttempt(ctx context.Context, id int64, threshold int, lockout time.Duration) (int, *time.Time, error)
	RecordSuccessfulLogin(ctx context.Context, id int64) error
}

// LoginHistoryStore records login attempts for audit purposes
type LoginHistoryStore interface {
	Append(ctx context.Context, entry *models.LoginHistoryEntry) error
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.LoginHistoryEntry, error)
}

// CredentialConfig holds credential verification configuration
type CredentialConfig struct {
	LockoutThreshold int           // failed attempts before the account locks
	LockoutDuration  time.Duration // how long a lock lasts
	StoreTimeout     time.Duration
}

// CredentialService verifies username/password pairs and maintains the
// progressive lockout state. Every call leaves exactly one login_history
// row; history write failures never change the verification outcome.
type CredentialService struct {
	accounts CredentialAccountStore
	history  LoginHistoryStore
	config   CredentialConfig
	delay    *auth.TimingDelay
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(
	accounts CredentialAccountStore,
	history LoginHistoryStore,
	config CredentialConfig,
	delay *auth.TimingDelay,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *CredentialService {
	return &CredentialService{
		accounts: accounts,
		history:  history,
		config:   config,
		delay:    delay,
		logger:   logger,
		audit:    audit,
	}
}

func (s *CredentialService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

// Verify checks a username/password pair against the account store.
//
// Outcomes, in evaluation order:
//   - unknown username          -> ErrInvalidCredentials
//   - account currently locked  -> ErrAccountLocked (password never checked,
//     no failure accrued while locked)
//   - wrong password            -> ErrInvalidCredentials, failure counter
//     incremented; reaching the threshold arms the lockout
//   - correct password but the account is not activated -> ErrAccountInactive
//   - success                   -> counter reset, lock cleared, summary returned
//
// An expired lock is treated as no lock; the counter resets only on success.
// Failing paths are padded to a uniform response time.
func (s *CredentialService) Verify(ctx context.Context, username, password, ipAddress, userAgent string) (*models.AccountSummary, error) {
	start := time.Now()

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordAttempt(ctx, nil, ipAddress, userAgent, false, models.FailureUserNotFound)
			s.delay.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to load account for verification",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Any("error", err))
		return nil, models.ErrStorageUnavailable
	}

	now := time.Now()

	if account.IsLocked(now) {
		s.recordAttempt(ctx, &account.ID, ipAddress, userAgent, false, models.FailureAccountLocked)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login",
			UserID:        account.ID,
			ClientID:      ipAddress,
			UserAgent:     userAgent,
			Success:       false,
			FailureReason: models.FailureAccountLocked,
		})
		s.delay.WaitFrom(start, false)
		return nil, models.ErrAccountLocked
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		attempts, lockedUntil, recErr := s.accounts.RecordFailedAttempt(ctx,
			account.ID, s.config.LockoutThreshold, s.config.LockoutDuration)
		if recErr != nil {
			s.logger.Error("failed to record failed login attempt",
				slog.Int64("user_id", account.ID),
				slog.Any("error", recErr))
		} else if lockedUntil != nil && lockedUntil.After(now) {
			s.logger.Warn("account locked after repeated failures",
				slog.Int64("user_id", account.ID),
				slog.Int("failed_attempts", attempts),
				slog.Time("locked_until", *lockedUntil))
		}

		s.recordAttempt(ctx, &account.ID, ipAddress, userAgent, false, models.FailureInvalidPassword)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login",
			UserID:        account.ID,
			ClientID:      ipAddress,
			UserAgent:     userAgent,
			Success:       false,
			FailureReason: models.FailureInvalidPassword,
		})
		s.delay.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	if !account.IsActive {
		s.recordAttempt(ctx, &account.ID, ipAddress, userAgent, false, models.FailureNotActivated)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login",
			UserID:        account.ID,
			ClientID:      ipAddress,
			UserAgent:     userAgent,
			Success:       false,
			FailureReason: models.FailureNotActivated,
		})
		return nil, models.ErrAccountInactive
	}

	if err := s.accounts.RecordSuccessfulLogin(ctx, account.ID); err != nil {
		s.logger.Error("failed to record successful login",
			slog.Int64("user_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrStorageUnavailable
	}

	s.recordAttempt(ctx, &account.ID, ipAddress, userAgent, true, "")
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login",
		UserID:    account.ID,
		ClientID:  ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return account.Summary(), nil
}

// defaultHistoryLimit caps how many login_history rows a single
// activity query returns.
const defaultHistoryLimit = 20

// RecentActivity returns the newest login attempts recorded for an
// account, most recent first. Limits outside 1..100 fall back to the
// default page size.
func (s *CredentialService) RecentActivity(ctx context.Context, userID int64, limit int) ([]*models.LoginHistoryEntry, error) {
	if limit < 1 || limit > 100 {
		limit = defaultHistoryLimit
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	entries, err := s.history.ListByUserID(ctx, userID, limit)
	if err != nil {
		s.logger.Error("failed to list login history",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrStorageUnavailable
	}
	return entries, nil
}

// recordAttempt appends one login_history row. Failures are logged and
// swallowed so an audit outage cannot change a verification outcome.
func (s *CredentialService) recordAttempt(ctx context.Context, userID *int64, ipAddress, userAgent string, success bool, failureReason string) {
	entry := &models.LoginHistoryEntry{
		UserID:     userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Successful: success,
	}
	if failureReason != "" {
		entry.FailureReason = &failureReason
	}

	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append login history",
			slog.Bool("success", success),
			slog.Any("error", err))
	}
}
