package handlers_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	internalauth "github.com/censusconnect/gatekeeper/internal/auth"
	"github.com/censusconnect/gatekeeper/internal/handlers"
	"github.com/censusconnect/gatekeeper/internal/models"
	"github.com/censusconnect/gatekeeper/internal/routes"
	"github.com/censusconnect/gatekeeper/internal/services"
	pkgauth "github.com/censusconnect/gatekeeper/pkg/auth"
	pkglogger "github.com/censusconnect/gatekeeper/pkg/logger"
)

// In-memory stores backing a full service stack for handler tests.

type stubAccountStore struct {
	accounts map[string]*models.Account // by username
}

func (s *stubAccountStore) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	account, ok := s.accounts[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *stubAccountStore) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	for _, account := range s.accounts {
		if account.ID == id {
			copied := *account
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *stubAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	for _, account := range s.accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *stubAccountStore) GetByActivationToken(ctx context.Context, token string) (*models.Account, error) {
	for _, account := range s.accounts {
		if account.ActivationToken != nil && *account.ActivationToken == token {
			copied := *account
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *stubAccountStore) GetByResetToken(ctx context.Context, token string) (*models.Account, error) {
	for _, account := range s.accounts {
		if account.ResetPasswordToken != nil && *account.ResetPasswordToken == token {
			copied := *account
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *stubAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	copied := *account
	copied.ID = int64(len(s.accounts) + 1)
	s.accounts[copied.Username] = &copied
	stored := copied
	return &stored, nil
}

func (s *stubAccountStore) ApplyPatch(ctx context.Context, id int64, patch *models.AccountPatch) (*models.Account, error) {
	for _, account := range s.accounts {
		if account.ID != id {
			continue
		}
		if patch.IsActive != nil {
			account.IsActive = *patch.IsActive
		}
		if patch.ClearActivationToken {
			account.ActivationToken = nil
			account.ActivationTokenCreatedAt = nil
		}
		if patch.ResetPasswordToken != nil {
			account.ResetPasswordToken = patch.ResetPasswordToken
		}
		if patch.ResetPasswordTokenCreatedAt != nil {
			account.ResetPasswordTokenCreatedAt = patch.ResetPasswordTokenCreatedAt
		}
		copied := *account
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubAccountStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	for _, account := range s.accounts {
		if account.ID == id {
			account.PasswordHash = passwordHash
			account.ResetPasswordToken = nil
			account.ResetPasswordTokenCreatedAt = nil
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *stubAccountStore) Delete(ctx context.Context, id int64) error {
	for username, account := range s.accounts {
		if account.ID == id {
			delete(s.accounts, username)
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *stubAccountStore) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	for _, account := range s.accounts {
		if account.Username == username || account.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubAccountStore) RecordFailedAttempt(ctx context.Context, id int64, threshold int, lockout time.Duration) (int, *time.Time, error) {
	for _, account := range s.accounts {
		if account.ID == id {
			account.FailedLoginAttempts++
			if account.FailedLoginAttempts >= threshold {
				until := time.Now().Add(lockout)
				account.AccountLockedUntil = &until
			}
			return account.FailedLoginAttempts, account.AccountLockedUntil, nil
		}
	}
	return 0, nil, models.ErrNotFound
}

func (s *stubAccountStore) RecordSuccessfulLogin(ctx context.Context, id int64) error {
	for _, account := range s.accounts {
		if account.ID == id {
			account.FailedLoginAttempts = 0
			account.AccountLockedUntil = nil
			return nil
		}
	}
	return models.ErrNotFound
}

type stubHistoryStore struct {
	entries []*models.LoginHistoryEntry
}

func (s *stubHistoryStore) Append(ctx context.Context, entry *models.LoginHistoryEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubHistoryStore) ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.LoginHistoryEntry, error) {
	matched := make([]*models.LoginHistoryEntry, 0)
	for i := len(s.entries) - 1; i >= 0 && len(matched) < limit; i-- {
		entry := s.entries[i]
		if entry.UserID != nil && *entry.UserID == userID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

type stubSessionStore struct {
	sessions map[string]*models.Session
}

func (s *stubSessionStore) Create(ctx context.Context, session *models.Session) error {
	copied := *session
	s.sessions[session.Token] = &copied
	return nil
}

func (s *stubSessionStore) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	session, ok := s.sessions[token]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *stubSessionStore) Deactivate(ctx context.Context, token string) (bool, error) {
	session, ok := s.sessions[token]
	if !ok {
		return false, nil
	}
	session.IsActive = false
	return true, nil
}

func (s *stubSessionStore) DeactivateByUserID(ctx context.Context, userID int64) (int64, error) {
	var n int64
	for _, session := range s.sessions {
		if session.UserID == userID && session.IsActive {
			session.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *stubSessionStore) DeleteExpired(ctx context.Context) (int64, error) { return 0, nil }

type stubThrottleStore struct {
	blocked bool
}

func (s *stubThrottleStore) GetRule(ctx context.Context, endpoint string) (*models.ThrottleRule, error) {
	if endpoint == "login" {
		return &models.ThrottleRule{Endpoint: "login", MaxAttempts: 5, TimeWindow: 60}, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubThrottleStore) CheckAndLog(ctx context.Context, clientID, endpoint string, window time.Duration, maxAttempts int) (bool, error) {
	return s.blocked, nil
}

func (s *stubThrottleStore) WindowStats(ctx context.Context, clientID, endpoint string, window time.Duration) (int, *time.Time, error) {
	return 2, nil, nil
}

func (s *stubThrottleStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type stubEmailSender struct{}

func (s *stubEmailSender) SendActivationEmail(ctx context.Context, toEmail, token string, expiresAt time.Time) error {
	return nil
}

func (s *stubEmailSender) SendPasswordResetEmail(ctx context.Context, toEmail, token string, expiresAt time.Time) error {
	return nil
}

type testEnv struct {
	router   chi.Router
	accounts *stubAccountStore
	throttle *stubThrottleStore
	sessions *stubSessionStore
	history  *stubHistoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	audit := pkglogger.NewAuditLogger(logger)

	accounts := &stubAccountStore{accounts: make(map[string]*models.Account)}
	sessionStore := &stubSessionStore{sessions: make(map[string]*models.Session)}
	throttleStore := &stubThrottleStore{}
	historyStore := &stubHistoryStore{}

	throttleService := services.NewThrottleService(throttleStore, services.ThrottleConfig{Retention: 24 * time.Hour}, logger, audit)
	credentialService := services.NewCredentialService(accounts, historyStore, services.CredentialConfig{
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
	}, internalauth.NewTimingDelay(internalauth.TimingConfig{}), logger, audit)
	sessionService := services.NewSessionService(sessionStore, services.SessionConfig{TTL: time.Hour}, logger, audit)
	lifecycleService := services.NewLifecycleService(accounts, sessionService, &stubEmailSender{}, services.LifecycleConfig{
		ActivationTokenTTL: 24 * time.Hour,
		ResetTokenTTL:      time.Hour,
		BcryptCost:         4,
		AutoActivate:       true,
	}, logger, audit)

	core := services.NewCore(throttleService, credentialService, sessionService, lifecycleService)
	authHandler := handlers.NewAuthHandler(core, nil, internalauth.CookieConfig{SameSite: "lax"})

	router := chi.NewRouter()
	routes.RegisterRoutes(router, authHandler, throttleService, sessionService, nil)

	return &testEnv{router: router, accounts: accounts, throttle: throttleStore, sessions: sessionStore, history: historyStore}
}

func (env *testEnv) seedAccount(t *testing.T, username, password string, active bool) *models.Account {
	t.Helper()
	hash, err := pkgauth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)

	account := &models.Account{
		ID:           int64(len(env.accounts.accounts) + 1),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsActive:     active,
	}
	env.accounts.accounts[username] = account
	return account
}

func postJSON(router chi.Router, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest("POST", path, strings.NewReader(body))
	r.RemoteAddr = "203.0.113.7:1234"
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestLoginEndpoint_Success(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)

	w := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.LoginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.User.Username)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, internalauth.SessionCookieName, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLoginEndpoint_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)

	w := postJSON(env.router, "/auth/login", `{"username":"alice","password":"wrong-one"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies(), "no session cookie on failure")
}

func TestLoginEndpoint_UnknownUserSameStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)

	wrongPassword := postJSON(env.router, "/auth/login", `{"username":"alice","password":"wrong-one"}`)
	unknownUser := postJSON(env.router, "/auth/login", `{"username":"nobody","password":"wrong-one"}`)

	assert.Equal(t, wrongPassword.Code, unknownUser.Code,
		"unknown user and wrong password must be indistinguishable")
}

func TestLoginEndpoint_LockedAccount(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedAccount(t, "alice", "Password1!", true)
	lockedUntil := time.Now().Add(10 * time.Minute)
	account.AccountLockedUntil = &lockedUntil

	w := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginEndpoint_Throttled(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)
	env.throttle.blocked = true

	w := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLoginEndpoint_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	w := postJSON(env.router, "/auth/login", `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginEndpoint_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	w := postJSON(env.router, "/auth/login", `{"username":"alice"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterEndpoint_CreatesAccount(t *testing.T) {
	env := newTestEnv(t)

	w := postJSON(env.router, "/auth/register",
		`{"username":"alice","email":"alice@example.com","password":"Password1!"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, env.accounts.accounts, "alice")
}

func TestRegisterEndpoint_DuplicateConflict(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)

	w := postJSON(env.router, "/auth/register",
		`{"username":"alice","email":"other@example.com","password":"Password1!"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogoutEndpoint_Idempotent(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code, "logout without a session still succeeds")
}

func TestActivateEndpoint_UnknownToken(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest("GET", "/auth/activate/no-such-token", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordResetRequest_AlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)

	known := postJSON(env.router, "/auth/password-reset", `{"email":"alice@example.com"}`)
	unknown := postJSON(env.router, "/auth/password-reset", `{"email":"nobody@example.com"}`)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String(),
		"responses must not reveal whether the address is registered")
}

func TestRateLimitStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest("GET", "/auth/rate-limit-status?endpoint=login", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]int
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, 3, status["remaining"], "5 max minus 2 in window")
}

func TestRateLimitStatusEndpoint_UnmeteredSentinel(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest("GET", "/auth/rate-limit-status?endpoint=metrics", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]int
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, -1, status["remaining"])
	assert.Equal(t, -1, status["reset_seconds"])
}

func TestRateLimitStatusEndpoint_MissingParam(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest("GET", "/auth/rate-limit-status", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWhoAmIEndpoint_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest("GET", "/auth/whoami", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWhoAmIEndpoint_WithSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)

	login := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)
	require.Equal(t, http.StatusOK, login.Code)
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	r := httptest.NewRequest("GET", "/auth/whoami", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.AddCookie(cookies[0])
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.LoginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.User.Username)
}

func loginAndGetCookie(t *testing.T, env *testEnv, username, password string) *http.Cookie {
	t.Helper()
	w := postJSON(env.router, "/auth/login",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func postJSONWithCookie(router chi.Router, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest("POST", path, strings.NewReader(body))
	r.RemoteAddr = "203.0.113.7:1234"
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestLoginEndpoint_InactiveAccountHint(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", false)

	w := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "verify your email",
		"a correct password against an unactivated account gets the activation hint")
	assert.Empty(t, w.Result().Cookies())
}

func TestChangePasswordEndpoint_Success(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)
	cookie := loginAndGetCookie(t, env, "alice", "Password1!")

	w := postJSONWithCookie(env.router, "/auth/change-password",
		`{"current_password":"Password1!","new_password":"Replacement2!"}`, cookie)

	require.Equal(t, http.StatusOK, w.Code)

	cleared := w.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Negative(t, cleared[0].MaxAge, "session cookie is cleared")

	// The old session is revoked
	r := httptest.NewRequest("GET", "/auth/whoami", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.AddCookie(cookie)
	whoami := httptest.NewRecorder()
	env.router.ServeHTTP(whoami, r)
	assert.Equal(t, http.StatusUnauthorized, whoami.Code)

	// Old password out, new password in
	old := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)
	assert.Equal(t, http.StatusUnauthorized, old.Code)
	fresh := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Replacement2!"}`)
	assert.Equal(t, http.StatusOK, fresh.Code)
}

func TestChangePasswordEndpoint_WrongCurrentPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)
	cookie := loginAndGetCookie(t, env, "alice", "Password1!")

	w := postJSONWithCookie(env.router, "/auth/change-password",
		`{"current_password":"not-it","new_password":"Replacement2!"}`, cookie)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Current password is incorrect")

	// Password unchanged
	again := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestChangePasswordEndpoint_WeakNewPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)
	cookie := loginAndGetCookie(t, env, "alice", "Password1!")

	w := postJSONWithCookie(env.router, "/auth/change-password",
		`{"current_password":"Password1!","new_password":"short"}`, cookie)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	again := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestChangePasswordEndpoint_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	w := postJSON(env.router, "/auth/change-password",
		`{"current_password":"Password1!","new_password":"Replacement2!"}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)

	failed := postJSON(env.router, "/auth/login", `{"username":"alice","password":"wrong-one"}`)
	require.Equal(t, http.StatusUnauthorized, failed.Code)
	cookie := loginAndGetCookie(t, env, "alice", "Password1!")

	r := httptest.NewRequest("GET", "/auth/login-history", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.LoginHistoryResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.History, 2, "one failure and one success, newest first")
	assert.True(t, resp.History[0].Successful)
	require.NotNil(t, resp.History[1].FailureReason)
	assert.Equal(t, models.FailureInvalidPassword, *resp.History[1].FailureReason)
}

func TestLoginHistoryEndpoint_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	r := httptest.NewRequest("GET", "/auth/login-history", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWhoAmIEndpoint_DifferentClientRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice", "Password1!", true)

	login := postJSON(env.router, "/auth/login", `{"username":"alice","password":"Password1!"}`)
	require.Equal(t, http.StatusOK, login.Code)
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	// Same cookie, different user agent
	r := httptest.NewRequest("GET", "/auth/whoami", nil)
	r.RemoteAddr = "203.0.113.7:1234"
	r.Header.Set("User-Agent", "curl/8.0")
	r.AddCookie(cookies[0])
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
