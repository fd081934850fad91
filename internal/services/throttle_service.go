package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/censusconnect/gatekeeper/internal/models"
	pkglogger "github.com/censusconnect/gatekeeper/pkg/logger"
)

// ThrottleStore defines the interface for throttle rule and log operations
type ThrottleStore interface {
	GetRule(ctx context.Context, endpoint string) (*models.ThrottleRule, error)
	CheckAndLog(ctx context.Context, clientID, endpoint string, window time.Duration, maxAttempts int) (bool, error)
	WindowStats(ctx context.Context, clientID, endpoint string, window time.Duration) (int, *time.Time, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ThrottleConfig holds throttle engine configuration
type ThrottleConfig struct {
	Retention    time.Duration // how long log rows are kept before Prune removes them
	StoreTimeout time.Duration
}

// ThrottleService is the sliding-window request throttle. All state lives
// in the store; the service is safe for any number of concurrent callers.
type ThrottleService struct {
	store  ThrottleStore
	config ThrottleConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewThrottleService creates a new ThrottleService
func NewThrottleService(store ThrottleStore, config ThrottleConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *ThrottleService {
	return &ThrottleService{
		store:  store,
		config: config,
		logger: logger,
		audit:  audit,
	}
}

func (s *ThrottleService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

// Check decides whether a request from clientID may proceed on endpoint.
// Endpoints without a rule are unmetered: allowed, nothing logged. Metered
// calls always append a log row recording the decision, so the current
// call counts toward future windows. Storage failures fail closed.
func (s *ThrottleService) Check(ctx context.Context, clientID, endpoint string) (bool, error) {
	if clientID == "" || endpoint == "" {
		return false, models.ErrBadRequest
	}

	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	rule, err := s.store.GetRule(ctx, endpoint)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return true, nil
		}
		s.logger.Error("failed to load throttle rule",
			slog.String("endpoint", endpoint),
			slog.Any("error", err))
		s.audit.LogThrottleDecision(pkglogger.AuditEvent{
			EventType:     "throttle_fail_closed",
			ClientID:      clientID,
			Endpoint:      endpoint,
			FailureReason: "storage_unavailable",
		})
		return false, models.ErrStorageUnavailable
	}

	blocked, err := s.store.CheckAndLog(ctx, clientID, endpoint, rule.Window(), rule.MaxAttempts)
	if err != nil {
		s.logger.Error("failed to evaluate throttle window",
			slog.String("endpoint", endpoint),
			slog.Any("error", err))
		s.audit.LogThrottleDecision(pkglogger.AuditEvent{
			EventType:     "throttle_fail_closed",
			ClientID:      clientID,
			Endpoint:      endpoint,
			FailureReason: "storage_unavailable",
		})
		return false, models.ErrStorageUnavailable
	}

	if blocked {
		s.logger.Warn("rate limit exceeded",
			slog.String("client_id", clientID),
			slog.String("endpoint", endpoint),
			slog.Int("max_attempts", rule.MaxAttempts),
			slog.Int("time_window_seconds", rule.TimeWindow))
		s.audit.LogThrottleDecision(pkglogger.AuditEvent{
			EventType: "throttle_blocked",
			ClientID:  clientID,
			Endpoint:  endpoint,
		})
	}

	return !blocked, nil
}

// Status reports remaining attempts and seconds until the window resets
// for a (clientID, endpoint) pair. Read-only: no log row is written.
// Unmetered endpoints return the (-1, -1) sentinel.
func (s *ThrottleService) Status(ctx context.Context, clientID, endpoint string) (models.ThrottleStatus, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	rule, err := s.store.GetRule(ctx, endpoint)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NoThrottleStatus, nil
		}
		return models.ThrottleStatus{}, models.ErrStorageUnavailable
	}

	count, oldest, err := s.store.WindowStats(ctx, clientID, endpoint, rule.Window())
	if err != nil {
		return models.ThrottleStatus{}, models.ErrStorageUnavailable
	}

	remaining := rule.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	elapsed := 0
	if oldest != nil {
		elapsed = int(time.Since(*oldest).Seconds())
	}
	reset := rule.TimeWindow - elapsed
	if reset < 0 {
		reset = 0
	}

	return models.ThrottleStatus{Remaining: remaining, ResetSeconds: reset}, nil
}

// Prune removes throttle log rows older than the retention horizon. Meant
// to run on a periodic schedule, never on the request path. Idempotent.
func (s *ThrottleService) Prune(ctx context.Context) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	cutoff := time.Now().Add(-s.config.Retention)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune throttle log", slog.Any("error", err))
		return models.ErrStorageUnavailable
	}

	if deleted > 0 {
		s.logger.Info("throttle log pruned", slog.Int64("rows_deleted", deleted))
	}
	return nil
}
