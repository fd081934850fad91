package repositories

import (
	"context"

	"github.com/censusconnect/gatekeeper/internal/database"
	"github.com/censusconnect/gatekeeper/internal/models"
	"github.com/google/uuid"
)

// LoginHistoryRepository handles the append-only login audit log
type LoginHistoryRepository struct {
	db *database.DB
}

// NewLoginHistoryRepository creates a new LoginHistoryRepository
func NewLoginHistoryRepository(db *database.DB) *LoginHistoryRepository {
	return &LoginHistoryRepository{db: db}
}

// Append records one login attempt. The log is never mutated or deleted
// by the service; retention is an external concern.
func (r *LoginHistoryRepository) Append(ctx context.Context, entry *models.LoginHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO login_history (id, user_id, ip_address, user_agent, login_successful, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.IPAddress, entry.UserAgent,
		entry.Successful, entry.FailureReason,
	)

	return database.MapPostgresError(err)
}

// ListByUserID returns the most recent attempts for an account, newest first
func (r *LoginHistoryRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.LoginHistoryEntry, error) {
	query := `
		SELECT id, user_id, ip_address, user_agent, login_successful, failure_reason, timestamp
		FROM login_history
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	entries := make([]*models.LoginHistoryEntry, 0)
	for rows.Next() {
		var e models.LoginHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.IPAddress, &e.UserAgent,
			&e.Successful, &e.FailureReason, &e.Timestamp); err != nil {
			return nil, database.MapPostgresError(err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return entries, nil
}
