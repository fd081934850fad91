package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/censusconnect/gatekeeper/internal/services"
)

// CleanupManager periodically prunes expired sessions and throttle log
// rows past their retention horizon. Neither prune affects semantics:
// expired sessions already fail verification and old throttle rows fall
// outside every window.
type CleanupManager struct {
	throttle *services.ThrottleService
	sessions *services.SessionService
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	throttle *services.ThrottleService,
	sessions *services.SessionService,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		throttle: throttle,
		sessions: sessions,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := cm.throttle.Prune(cleanupCtx); err != nil {
		cm.logger.Error("throttle log prune failed", slog.Any("error", err))
	}

	if err := cm.sessions.PruneExpired(cleanupCtx); err != nil {
		cm.logger.Error("expired session prune failed", slog.Any("error", err))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
