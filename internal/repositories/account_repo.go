package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/censusconnect/gatekeeper/internal/database"
	"github.com/censusconnect/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `user_id, username, email, password_hash, is_active,
	activation_token, activation_token_created_at,
	reset_password_token, reset_password_token_created_at,
	failed_login_attempts, account_locked_until, last_failed_login, last_login,
	created_at, updated_at`

// AccountRepository handles database operations for user accounts
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner interface for scanning account rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account

	err := scanner.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsActive,
		&a.ActivationToken, &a.ActivationTokenCreatedAt,
		&a.ResetPasswordToken, &a.ResetPasswordTokenCreatedAt,
		&a.FailedLoginAttempts, &a.AccountLockedUntil, &a.LastFailedLogin, &a.LastLogin,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

func (r *AccountRepository) getByColumn(ctx context.Context, column, value string) (*models.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, accountColumns, column)
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, value))
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE user_id = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	return r.getByColumn(ctx, "username", username)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getByColumn(ctx, "email", email)
}

func (r *AccountRepository) GetByActivationToken(ctx context.Context, token string) (*models.Account, error) {
	return r.getByColumn(ctx, "activation_token", token)
}

func (r *AccountRepository) GetByResetToken(ctx context.Context, token string) (*models.Account, error) {
	return r.getByColumn(ctx, "reset_password_token", token)
}

// Create inserts a new account and returns it with store-assigned fields
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO users (username, email, password_hash, is_active,
			activation_token, activation_token_created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.db.Pool.QueryRow(ctx, query,
		account.Username, account.Email, account.PasswordHash, account.IsActive,
		account.ActivationToken, account.ActivationTokenCreatedAt,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// ApplyPatch translates an AccountPatch into one static UPDATE. Nil patch
// fields keep the current column value; Clear* flags null the column.
func (r *AccountRepository) ApplyPatch(ctx context.Context, id int64, patch *models.AccountPatch) (*models.Account, error) {
	if patch.IsZero() {
		return r.GetByID(ctx, id)
	}

	query := `
		UPDATE users SET
			username = COALESCE($2, username),
			email = COALESCE($3, email),
			password_hash = COALESCE($4, password_hash),
			is_active = COALESCE($5, is_active),
			activation_token = CASE WHEN $6 THEN NULL ELSE COALESCE($7, activation_token) END,
			activation_token_created_at = CASE WHEN $6 THEN NULL ELSE COALESCE($8, activation_token_created_at) END,
			reset_password_token = CASE WHEN $9 THEN NULL ELSE COALESCE($10, reset_password_token) END,
			reset_password_token_created_at = CASE WHEN $9 THEN NULL ELSE COALESCE($11, reset_password_token_created_at) END,
			failed_login_attempts = COALESCE($12, failed_login_attempts),
			account_locked_until = CASE WHEN $13 THEN NULL ELSE COALESCE($14, account_locked_until) END,
			last_login = COALESCE($15, last_login),
			last_failed_login = COALESCE($16, last_failed_login),
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query,
		id,
		patch.Username, patch.Email, patch.PasswordHash, patch.IsActive,
		patch.ClearActivationToken, patch.ActivationToken, patch.ActivationTokenCreatedAt,
		patch.ClearResetPasswordToken, patch.ResetPasswordToken, patch.ResetPasswordTokenCreatedAt,
		patch.FailedLoginAttempts,
		patch.ClearAccountLock, patch.AccountLockedUntil,
		patch.LastLogin, patch.LastFailedLogin,
	))
}

// RecordFailedAttempt increments the failed-login counter and arms the
// lockout when the post-increment count reaches the threshold. The whole
// read-increment-write runs in one UPDATE so concurrent attempts against
// the same account serialize on the row lock.
func (r *AccountRepository) RecordFailedAttempt(ctx context.Context, id int64, threshold int, lockout time.Duration) (int, *time.Time, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
			last_failed_login = CURRENT_TIMESTAMP,
			account_locked_until = CASE
				WHEN failed_login_attempts + 1 >= $2
				THEN CURRENT_TIMESTAMP + make_interval(secs => $3)
				ELSE account_locked_until
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1
		RETURNING failed_login_attempts, account_locked_until
	`

	var attempts int
	var lockedUntil *time.Time
	err := r.db.Pool.QueryRow(ctx, query, id, threshold, lockout.Seconds()).Scan(&attempts, &lockedUntil)
	if err != nil {
		return 0, nil, database.MapPostgresError(err)
	}

	return attempts, lockedUntil, nil
}

// RecordSuccessfulLogin resets the failure counter, clears any lockout
// and stamps last_login.
func (r *AccountRepository) RecordSuccessfulLogin(ctx context.Context, id int64) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
			account_locked_until = NULL,
			last_login = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdatePassword stores a new password hash, clears the reset token and
// appends the hash to password_history, all in one transaction.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE users
			SET password_hash = $2,
				reset_password_token = NULL,
				reset_password_token_created_at = NULL,
				updated_at = CURRENT_TIMESTAMP
			WHERE user_id = $1
		`, id, passwordHash)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO password_history (user_id, password_hash)
			VALUES ($1, $2)
		`, id, passwordHash)
		return database.MapPostgresError(err)
	})
}

// Delete removes an account; sessions and history rows cascade in the store.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ExistsByUsernameOrEmail reports whether either identifier is taken.
func (r *AccountRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)
	`, username, email).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}
