package services_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/censusconnect/gatekeeper/internal/auth"
	"github.com/censusconnect/gatekeeper/internal/models"
	"github.com/censusconnect/gatekeeper/internal/services"
	pkgauth "github.com/censusconnect/gatekeeper/pkg/auth"
	pkglogger "github.com/censusconnect/gatekeeper/pkg/logger"
)

// MockCredentialAccountStore implements CredentialAccountStore in memory
type MockCredentialAccountStore struct {
	accounts map[string]*models.Account // keyed by username
	getErr   error
	recErr   error
}

func NewMockCredentialAccountStore() *MockCredentialAccountStore {
	return &MockCredentialAccountStore{accounts: make(map[string]*models.Account)}
}

func (m *MockCredentialAccountStore) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	account, ok := m.accounts[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *MockCredentialAccountStore) RecordFailedAttempt(ctx context.Context, id int64, threshold int, lockout time.Duration) (int, *time.Time, error) {
	if m.recErr != nil {
		return 0, nil, m.recErr
	}
	account := m.byID(id)
	if account == nil {
		return 0, nil, models.ErrNotFound
	}
	account.FailedLoginAttempts++
	now := time.Now()
	account.LastFailedLogin = &now
	if account.FailedLoginAttempts >= threshold {
		until := now.Add(lockout)
		account.AccountLockedUntil = &until
	}
	return account.FailedLoginAttempts, account.AccountLockedUntil, nil
}

func (m *MockCredentialAccountStore) RecordSuccessfulLogin(ctx context.Context, id int64) error {
	if m.recErr != nil {
		return m.recErr
	}
	account := m.byID(id)
	if account == nil {
		return models.ErrNotFound
	}
	account.FailedLoginAttempts = 0
	account.AccountLockedUntil = nil
	now := time.Now()
	account.LastLogin = &now
	return nil
}

func (m *MockCredentialAccountStore) byID(id int64) *models.Account {
	for _, account := range m.accounts {
		if account.ID == id {
			return account
		}
	}
	return nil
}

// MockLoginHistoryStore records appended entries
type MockLoginHistoryStore struct {
	entries   []*models.LoginHistoryEntry
	appendErr error
}

func (m *MockLoginHistoryStore) Append(ctx context.Context, entry *models.LoginHistoryEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockLoginHistoryStore) ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.LoginHistoryEntry, error) {
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	matched := make([]*models.LoginHistoryEntry, 0)
	for i := len(m.entries) - 1; i >= 0 && len(matched) < limit; i-- {
		entry := m.entries[i]
		if entry.UserID != nil && *entry.UserID == userID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (m *MockLoginHistoryStore) lastReason() string {
	if len(m.entries) == 0 {
		return ""
	}
	last := m.entries[len(m.entries)-1]
	if last.FailureReason == nil {
		return ""
	}
	return *last.FailureReason
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := pkgauth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	return hash
}

func newCredentialService(accounts *MockCredentialAccountStore, history *MockLoginHistoryStore) *services.CredentialService {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return services.NewCredentialService(accounts, history, services.CredentialConfig{
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
	}, auth.NewTimingDelay(auth.TimingConfig{}), logger, pkglogger.NewAuditLogger(logger))
}

func TestCredentialVerify_UnknownUser(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	service := newCredentialService(accounts, history)

	summary, err := service.Verify(context.Background(), "ghost", "Password1!", "192.168.1.1", "Mozilla/5.0")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Nil(t, summary)
	require.Len(t, history.entries, 1)
	assert.Nil(t, history.entries[0].UserID)
	assert.Equal(t, models.FailureUserNotFound, history.lastReason())
}

func TestCredentialVerify_WrongPasswordIncrementsCounter(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: true,
	}
	service := newCredentialService(accounts, history)

	summary, err := service.Verify(context.Background(), "alice", "wrong", "192.168.1.1", "Mozilla/5.0")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Nil(t, summary)
	assert.Equal(t, 1, accounts.accounts["alice"].FailedLoginAttempts)
	assert.Nil(t, accounts.accounts["alice"].AccountLockedUntil)
	assert.Equal(t, models.FailureInvalidPassword, history.lastReason())
}

func TestCredentialVerify_FifthFailureLocksAccount(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: true,
	}
	service := newCredentialService(accounts, history)

	for i := 0; i < 5; i++ {
		_, err := service.Verify(context.Background(), "alice", "wrong", "192.168.1.1", "Mozilla/5.0")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	account := accounts.accounts["alice"]
	assert.Equal(t, 5, account.FailedLoginAttempts)
	require.NotNil(t, account.AccountLockedUntil)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *account.AccountLockedUntil, 5*time.Second)
}

func TestCredentialVerify_LockedAccountRejectedWithoutPasswordCheck(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	lockedUntil := time.Now().Add(10 * time.Minute)
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: true,
		FailedLoginAttempts: 5, AccountLockedUntil: &lockedUntil,
	}
	service := newCredentialService(accounts, history)

	// Correct password, but the lock takes precedence
	summary, err := service.Verify(context.Background(), "alice", "Password1!", "192.168.1.1", "Mozilla/5.0")

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Nil(t, summary)
	assert.Equal(t, 5, accounts.accounts["alice"].FailedLoginAttempts,
		"attempts against a locked account accrue no further penalty")
	assert.Equal(t, models.FailureAccountLocked, history.lastReason())
}

func TestCredentialVerify_ExpiredLockAllowsLogin(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	expired := time.Now().Add(-1 * time.Minute)
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: true,
		FailedLoginAttempts: 5, AccountLockedUntil: &expired,
	}
	service := newCredentialService(accounts, history)

	summary, err := service.Verify(context.Background(), "alice", "Password1!", "192.168.1.1", "Mozilla/5.0")

	assert.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, int64(1), summary.ID)
	assert.Equal(t, 0, accounts.accounts["alice"].FailedLoginAttempts, "success resets the counter")
	assert.Nil(t, accounts.accounts["alice"].AccountLockedUntil)
}

func TestCredentialVerify_ExpiredLockWrongPasswordCountsAgain(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	expired := time.Now().Add(-1 * time.Minute)
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: true,
		FailedLoginAttempts: 5, AccountLockedUntil: &expired,
	}
	service := newCredentialService(accounts, history)

	_, err := service.Verify(context.Background(), "alice", "wrong", "192.168.1.1", "Mozilla/5.0")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	// The stale counter was never reset, so this failure re-arms the lock
	assert.Equal(t, 6, accounts.accounts["alice"].FailedLoginAttempts)
	require.NotNil(t, accounts.accounts["alice"].AccountLockedUntil)
	assert.True(t, accounts.accounts["alice"].AccountLockedUntil.After(time.Now()))
}

func TestCredentialVerify_InactiveAccountAfterCorrectPassword(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: false,
	}
	service := newCredentialService(accounts, history)

	summary, err := service.Verify(context.Background(), "alice", "Password1!", "192.168.1.1", "Mozilla/5.0")

	assert.ErrorIs(t, err, models.ErrAccountInactive)
	assert.Nil(t, summary)
	assert.Equal(t, 0, accounts.accounts["alice"].FailedLoginAttempts,
		"a correct password never counts as a failed attempt")
	assert.Equal(t, models.FailureNotActivated, history.lastReason())
}

func TestCredentialVerify_SuccessRecordsHistory(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", Email: "alice@example.com",
		PasswordHash: hashFor(t, "Password1!"), IsActive: true,
		FailedLoginAttempts: 3,
	}
	service := newCredentialService(accounts, history)

	summary, err := service.Verify(context.Background(), "alice", "Password1!", "192.168.1.1", "Mozilla/5.0")

	assert.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "alice", summary.Username)
	assert.Equal(t, 0, accounts.accounts["alice"].FailedLoginAttempts)

	require.Len(t, history.entries, 1)
	assert.True(t, history.entries[0].Successful)
	assert.Nil(t, history.entries[0].FailureReason)
	require.NotNil(t, history.entries[0].UserID)
	assert.Equal(t, int64(1), *history.entries[0].UserID)
}

func TestCredentialVerify_HistoryFailureDoesNotChangeOutcome(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{appendErr: errors.New("connection refused")}
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: true,
	}
	service := newCredentialService(accounts, history)

	summary, err := service.Verify(context.Background(), "alice", "Password1!", "192.168.1.1", "Mozilla/5.0")

	assert.NoError(t, err, "history write failures are swallowed")
	assert.NotNil(t, summary)
}

func TestCredentialVerify_StorageErrorSurfaces(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	accounts.getErr = errors.New("connection refused")
	history := &MockLoginHistoryStore{}
	service := newCredentialService(accounts, history)

	summary, err := service.Verify(context.Background(), "alice", "Password1!", "192.168.1.1", "Mozilla/5.0")

	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.Nil(t, summary)
}

func TestCredentialVerify_OneHistoryRowPerAttempt(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: true,
	}
	service := newCredentialService(accounts, history)

	_, _ = service.Verify(context.Background(), "ghost", "x", "192.168.1.1", "ua")
	_, _ = service.Verify(context.Background(), "alice", "wrong", "192.168.1.1", "ua")
	_, _ = service.Verify(context.Background(), "alice", "Password1!", "192.168.1.1", "ua")

	assert.Len(t, history.entries, 3)
}

func TestCredentialRecentActivity(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{}
	accounts.accounts["alice"] = &models.Account{
		ID: 1, Username: "alice", PasswordHash: hashFor(t, "Password1!"), IsActive: true,
	}
	service := newCredentialService(accounts, history)

	_, _ = service.Verify(context.Background(), "alice", "wrong", "192.168.1.1", "ua")
	_, _ = service.Verify(context.Background(), "alice", "Password1!", "192.168.1.1", "ua")
	_, _ = service.Verify(context.Background(), "ghost", "x", "192.168.1.1", "ua")

	entries, err := service.RecentActivity(context.Background(), 1, 10)

	require.NoError(t, err)
	require.Len(t, entries, 2, "attempts against unknown usernames are not attributed")
	assert.True(t, entries[0].Successful, "newest first")
	require.NotNil(t, entries[1].FailureReason)
	assert.Equal(t, models.FailureInvalidPassword, *entries[1].FailureReason)
}

func TestCredentialRecentActivity_StorageError(t *testing.T) {
	accounts := NewMockCredentialAccountStore()
	history := &MockLoginHistoryStore{appendErr: errors.New("connection refused")}
	service := newCredentialService(accounts, history)

	entries, err := service.RecentActivity(context.Background(), 1, 10)

	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.Nil(t, entries)
}
