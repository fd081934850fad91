package middleware

import (
	"context"
	"net/http"

	"github.com/censusconnect/gatekeeper/internal/auth"
	"github.com/censusconnect/gatekeeper/internal/services"
	pkghttp "github.com/censusconnect/gatekeeper/pkg/http"
)

type contextKey string

// UserIDKey is the request context key holding the authenticated user ID
const UserIDKey contextKey = "user_id"

// RequireSession authenticates the request via its session cookie. The
// session must be active, unexpired and presented from the exact client
// fingerprint it was issued to; any other state is a 401 with no hint of
// which check failed.
func RequireSession(sessions *services.SessionService, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.GetSessionCookie(r)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			clientIP := pkghttp.ExtractClientIP(r, ipConfig)
			userID, err := sessions.Verify(r.Context(), token, clientIP, r.UserAgent())
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated user ID placed by RequireSession
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
