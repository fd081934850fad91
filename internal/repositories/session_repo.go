package repositories

import (
	"context"

	"github.com/censusconnect/gatekeeper/internal/database"
	"github.com/censusconnect/gatekeeper/internal/models"
)

// SessionRepository handles database operations for login sessions
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new session row
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO user_sessions (session_token, user_id, ip_address, user_agent, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		session.Token, session.UserID, session.IPAddress,
		session.UserAgent, session.ExpiresAt, session.IsActive,
	)

	return database.MapPostgresError(err)
}

// GetByToken fetches a session row regardless of state; the caller decides
// usability so expiry and fingerprint mismatch stay indistinguishable.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT session_token, user_id, ip_address, user_agent, expires_at, is_active, created_at
		FROM user_sessions
		WHERE session_token = $1
	`

	var s models.Session
	err := r.db.Pool.QueryRow(ctx, query, token).Scan(
		&s.Token, &s.UserID, &s.IPAddress, &s.UserAgent,
		&s.ExpiresAt, &s.IsActive, &s.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

// Deactivate marks a session inactive and reports whether a row existed
func (r *SessionRepository) Deactivate(ctx context.Context, token string) (bool, error) {
	query := `UPDATE user_sessions SET is_active = FALSE WHERE session_token = $1`

	result, err := r.db.Pool.Exec(ctx, query, token)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() > 0, nil
}

// DeactivateByUserID invalidates every session owned by an account
func (r *SessionRepository) DeactivateByUserID(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE user_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`

	result, err := r.db.Pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions past their expiry
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM user_sessions WHERE expires_at <= CURRENT_TIMESTAMP`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
