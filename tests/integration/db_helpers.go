package integration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/censusconnect/gatekeeper/internal/database"
	pkgauth "github.com/censusconnect/gatekeeper/pkg/auth"
)

// TestDB manages the PostgreSQL testcontainer used by integration tests
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SkipUnlessIntegration skips the test unless INTEGRATION is set. The
// suite needs Docker and is meant for CI, not the default test run.
func SkipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run container-backed tests")
	}
}

// SetupTestDatabase starts a postgres container, applies the embedded
// migrations and returns a ready connection pool.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("gatekeeper"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := database.Migrate(connStr, logger); err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// Teardown stops the container and closes the pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates mutable tables between tests. throttle_rules
// keeps its seed rows.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"throttle_log",
		"password_history",
		"login_history",
		"user_sessions",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedAccount inserts an account with a real bcrypt hash and returns its ID
func SeedAccount(ctx context.Context, pool *pgxpool.Pool, username, email, password string, active bool) (int64, error) {
	hash, err := pkgauth.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	var id int64
	err = pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING user_id
	`, username, email, hash, active).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}

	return id, nil
}

// SeedThrottleRule upserts a throttle rule so tests can use tight windows
func SeedThrottleRule(ctx context.Context, pool *pgxpool.Pool, endpoint string, maxAttempts, timeWindow int) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO throttle_rules (endpoint, max_attempts, time_window, lockout_duration)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (endpoint) DO UPDATE
		SET max_attempts = EXCLUDED.max_attempts, time_window = EXCLUDED.time_window
	`, endpoint, maxAttempts, timeWindow)
	return err
}
