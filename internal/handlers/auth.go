package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/censusconnect/gatekeeper/internal/auth"
	"github.com/censusconnect/gatekeeper/internal/middleware"
	"github.com/censusconnect/gatekeeper/internal/models"
	"github.com/censusconnect/gatekeeper/internal/services"
	pkghttp "github.com/censusconnect/gatekeeper/pkg/http"
)

// AuthHandler handles authentication and account lifecycle HTTP requests
type AuthHandler struct {
	core         *services.Core
	ipConfig     *pkghttp.IPConfig
	cookieConfig auth.CookieConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(core *services.Core, ipConfig *pkghttp.IPConfig, cookieConfig auth.CookieConfig) *AuthHandler {
	return &AuthHandler{
		core:         core,
		ipConfig:     ipConfig,
		cookieConfig: cookieConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ResetRequestRequest represents the request body for requesting a password reset
type ResetRequestRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetConfirmRequest represents the request body for completing a password reset
type ResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePasswordRequest represents the request body for an authenticated
// password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// LoginResponse is returned on successful authentication
type LoginResponse struct {
	User *models.AccountSummary `json:"user"`
}

// Login verifies credentials and sets the session cookie.
// Unknown username and wrong password collapse into one 401 message.
// Lockout, throttling and a correct-password-but-unactivated account are
// distinguishable; the activation hint only ever follows a correct
// password, so it reveals nothing to a guesser.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.UserAgent()

	summary, token, err := h.core.Login(r.Context(), req.Username, req.Password, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimited):
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded. Please try again later.")
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteError(w, http.StatusForbidden, "account_locked",
				"Account temporarily locked due to multiple failed login attempts")
		case errors.Is(err, models.ErrAccountInactive):
			pkghttp.WriteError(w, http.StatusUnauthorized, "account_not_activated",
				"Please verify your email address")
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Invalid username or password")
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.SetSessionCookie(w, token, h.core.Sessions.TTL(), h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{User: summary})
}

// Logout revokes the current session and clears the cookie. Succeeds
// even without a valid session; logging out twice is not an error.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.GetSessionCookie(r)
	if err == nil && token != "" {
		if _, err := h.core.Logout(r.Context(), token); err != nil {
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
			return
		}
	}

	auth.ClearSessionCookie(w, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Register creates a new account
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	summary, err := h.core.Lifecycle.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Username or email already registered")
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w, "Internal server error")
		default:
			// Username or password policy failure
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, LoginResponse{User: summary})
}

// Activate consumes an activation token from the URL path
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	activated, err := h.core.Lifecycle.ConsumeActivation(r.Context(), token)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return
	}
	if !activated {
		pkghttp.WriteBadRequest(w, "Invalid or expired activation link")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Account activated"})
}

// RequestPasswordReset issues a reset token for the given email. The
// response is identical whether or not the address is registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := h.core.Lifecycle.IssueReset(r.Context(), req.Email); err != nil {
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "If that address is registered, a reset email has been sent",
	})
}

// ConfirmPasswordReset consumes a reset token and sets the new password
func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ok, err := h.core.Lifecycle.ConsumeReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w, "Internal server error")
		default:
			// Password policy failure; the token is still valid
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}
	if !ok {
		pkghttp.WriteBadRequest(w, "Invalid or expired reset link")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// ChangePassword sets a new password for the authenticated user after
// re-verifying the current one. All sessions are revoked on success, so
// the caller must log in again.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.core.Lifecycle.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteBadRequest(w, "Current password is incorrect")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "Authentication required")
		case errors.Is(err, models.ErrStorageUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w, "Internal server error")
		default:
			// Password policy failure
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	auth.ClearSessionCookie(w, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Password updated. Please log in again",
	})
}

// LoginHistoryResponse wraps the authenticated user's recent attempts
type LoginHistoryResponse struct {
	History []*models.LoginHistoryEntry `json:"history"`
}

// LoginHistory returns the authenticated user's recent login attempts
func (h *AuthHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.core.Credentials.RecentActivity(r.Context(), userID, limit)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginHistoryResponse{History: entries})
}

// WhoAmI returns the authenticated user's account summary
func (h *AuthHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	summary, err := h.core.Lifecycle.GetSummary(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{User: summary})
}

// DeleteAccount removes the authenticated user's account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.core.Lifecycle.DeleteAccount(r.Context(), userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return
	}

	auth.ClearSessionCookie(w, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Account deleted"})
}

// RateLimitStatus reports remaining attempts and reset time for the
// caller against a named endpoint. Unmetered endpoints report -1/-1.
func (h *AuthHandler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		pkghttp.WriteBadRequest(w, "Missing endpoint parameter")
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)
	status, err := h.core.Throttle.Status(r.Context(), clientIP, endpoint)
	if err != nil {
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{
		"remaining":     status.Remaining,
		"reset_seconds": status.ResetSeconds,
	})
}
