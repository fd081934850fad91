package repositories

import (
	"context"
	"time"

	"github.com/censusconnect/gatekeeper/internal/database"
	"github.com/censusconnect/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

// ThrottleRepository handles throttle rules and the sliding-window log
type ThrottleRepository struct {
	db *database.DB
}

// NewThrottleRepository creates a new ThrottleRepository
func NewThrottleRepository(db *database.DB) *ThrottleRepository {
	return &ThrottleRepository{db: db}
}

// GetRule returns the throttle rule for an endpoint, or ErrNotFound when
// the endpoint is unmetered.
func (r *ThrottleRepository) GetRule(ctx context.Context, endpoint string) (*models.ThrottleRule, error) {
	query := `
		SELECT endpoint, max_attempts, time_window, lockout_duration
		FROM throttle_rules
		WHERE endpoint = $1
	`

	var rule models.ThrottleRule
	err := r.db.Pool.QueryRow(ctx, query, endpoint).Scan(
		&rule.Endpoint, &rule.MaxAttempts, &rule.TimeWindow, &rule.LockoutDuration,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rule, nil
}

// CheckAndLog counts window entries for (clientID, endpoint) and appends
// the decision row in one transaction. A per-key advisory lock serializes
// concurrent callers, so no more than max_attempts requests are admitted
// within any rolling window regardless of concurrency.
func (r *ThrottleRepository) CheckAndLog(ctx context.Context, clientID, endpoint string, window time.Duration, maxAttempts int) (bool, error) {
	var blocked bool

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, clientID, endpoint)
		if err != nil {
			return database.MapPostgresError(err)
		}

		var count int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM throttle_log
			WHERE ip_address = $1
			  AND endpoint = $2
			  AND timestamp > CURRENT_TIMESTAMP - make_interval(secs => $3)
		`, clientID, endpoint, window.Seconds()).Scan(&count)
		if err != nil {
			return database.MapPostgresError(err)
		}

		entry := models.ThrottleLogEntry{
			IPAddress: clientID,
			Endpoint:  endpoint,
			IsBlocked: count >= maxAttempts,
		}
		blocked = entry.IsBlocked

		_, err = tx.Exec(ctx, `
			INSERT INTO throttle_log (ip_address, endpoint, is_blocked)
			VALUES ($1, $2, $3)
		`, entry.IPAddress, entry.Endpoint, entry.IsBlocked)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return false, err
	}

	return blocked, nil
}

// WindowStats returns the current window count and the oldest counted
// entry for a (clientID, endpoint) pair. Read-only.
func (r *ThrottleRepository) WindowStats(ctx context.Context, clientID, endpoint string, window time.Duration) (int, *time.Time, error) {
	query := `
		SELECT COUNT(*), MIN(timestamp)
		FROM throttle_log
		WHERE ip_address = $1
		  AND endpoint = $2
		  AND timestamp > CURRENT_TIMESTAMP - make_interval(secs => $3)
	`

	var count int
	var oldest *time.Time
	err := r.db.Pool.QueryRow(ctx, query, clientID, endpoint, window.Seconds()).Scan(&count, &oldest)
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}

	return count, oldest, nil
}

// DeleteOlderThan prunes log rows past the retention horizon
func (r *ThrottleRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM throttle_log WHERE timestamp < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
