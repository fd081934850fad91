package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/censusconnect/gatekeeper/internal/models"
	pkgauth "github.com/censusconnect/gatekeeper/pkg/auth"
	pkglogger "github.com/censusconnect/gatekeeper/pkg/logger"
)

// SessionStore defines the session persistence operations
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	Deactivate(ctx context.Context, token string) (bool, error)
	DeactivateByUserID(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionConfig holds session manager configuration
type SessionConfig struct {
	TTL          time.Duration // session lifetime from creation
	StoreTimeout time.Duration
}

// SessionService issues and verifies fingerprint-bound opaque session
// tokens. A token is only usable from the exact (ip, user_agent) pair it
// was created with; callers cannot tell expiry from a fingerprint
// mismatch, both surface as ErrSessionInvalid.
type SessionService struct {
	store  SessionStore
	config SessionConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewSessionService creates a new SessionService
func NewSessionService(store SessionStore, config SessionConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *SessionService {
	return &SessionService{
		store:  store,
		config: config,
		logger: logger,
		audit:  audit,
	}
}

// TTL returns the configured session lifetime
func (s *SessionService) TTL() time.Duration {
	return s.config.TTL
}

func (s *SessionService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

// Create mints a fresh session for userID bound to the caller's client
// fingerprint and returns the opaque token. Creating a session never
// touches the user's other sessions.
func (s *SessionService) Create(ctx context.Context, userID int64, ipAddress, userAgent string) (string, error) {
	token, err := pkgauth.NewToken()
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	now := time.Now()
	session := &models.Session{
		Token:     token,
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.store.Create(ctx, session); err != nil {
		s.logger.Error("failed to persist session",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return "", models.ErrStorageUnavailable
	}

	s.audit.LogAccountAction("session_created", userID, ipAddress, map[string]string{
		"token_prefix": pkglogger.TokenPrefix(token),
	})

	return token, nil
}

// Verify resolves a token to its user ID when the session is active,
// unexpired and presented from the fingerprint it was issued to.
// Unknown, revoked, expired and mismatched tokens all return
// ErrSessionInvalid.
func (s *SessionService) Verify(ctx context.Context, token, ipAddress, userAgent string) (int64, error) {
	if token == "" {
		return 0, models.ErrSessionInvalid
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	session, err := s.store.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, models.ErrSessionInvalid
		}
		s.logger.Error("failed to load session",
			slog.String("token_prefix", pkglogger.TokenPrefix(token)),
			slog.Any("error", err))
		return 0, models.ErrStorageUnavailable
	}

	if !session.Usable(time.Now(), ipAddress, userAgent) {
		// Log the exact reason internally; the caller sees only "invalid".
		s.logger.Debug("session rejected",
			slog.Int64("user_id", session.UserID),
			slog.String("token_prefix", pkglogger.TokenPrefix(token)),
			slog.Bool("active", session.IsActive),
			slog.Bool("expired", session.IsExpired(time.Now())),
			slog.Bool("ip_match", session.IPAddress == ipAddress),
			slog.Bool("user_agent_match", session.UserAgent == userAgent))
		return 0, models.ErrSessionInvalid
	}

	return session.UserID, nil
}

// Invalidate revokes a single session. Idempotent: revoking an unknown
// or already-revoked token reports found=false without error.
func (s *SessionService) Invalidate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	found, err := s.store.Deactivate(ctx, token)
	if err != nil {
		s.logger.Error("failed to invalidate session",
			slog.String("token_prefix", pkglogger.TokenPrefix(token)),
			slog.Any("error", err))
		return false, models.ErrStorageUnavailable
	}

	return found, nil
}

// InvalidateAllForUser revokes every active session belonging to a user.
// Used on password reset and account deletion.
func (s *SessionService) InvalidateAllForUser(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	revoked, err := s.store.DeactivateByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to invalidate user sessions",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return 0, models.ErrStorageUnavailable
	}

	if revoked > 0 {
		s.audit.LogAccountAction("sessions_revoked", userID, "", map[string]string{
			"count": strconv.FormatInt(revoked, 10),
		})
	}

	return revoked, nil
}

// PruneExpired deletes sessions past their expiry. Revocation semantics
// never depend on this; it only reclaims storage.
func (s *SessionService) PruneExpired(ctx context.Context) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	deleted, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("failed to prune expired sessions", slog.Any("error", err))
		return models.ErrStorageUnavailable
	}

	if deleted > 0 {
		s.logger.Info("expired sessions pruned", slog.Int64("rows_deleted", deleted))
	}
	return nil
}
