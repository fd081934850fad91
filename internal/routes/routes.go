package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/censusconnect/gatekeeper/internal/handlers"
	"github.com/censusconnect/gatekeeper/internal/middleware"
	"github.com/censusconnect/gatekeeper/internal/services"
	pkghttp "github.com/censusconnect/gatekeeper/pkg/http"
)

// RegisterRoutes registers all application routes. Endpoint names given
// to the store-backed throttle match the seeded throttle_rules rows.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	throttleService *services.ThrottleService,
	sessionService *services.SessionService,
	ipConfig *pkghttp.IPConfig,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()
	firstLine := middleware.RateLimitByIP(rateLimitConfig)

	// Public routes. The in-process limiter sheds floods; the store-backed
	// throttle behind it is the authoritative sliding window. Login does
	// its throttle check inside the service flow, so only the first-line
	// limiter wraps it here; wrapping it again would double-count.
	router.With(firstLine).
		Post("/auth/login", authHandler.Login)
	router.With(firstLine, middleware.Throttle(throttleService, "register", ipConfig)).
		Post("/auth/register", authHandler.Register)
	router.With(firstLine, middleware.Throttle(throttleService, "password_reset", ipConfig)).
		Post("/auth/password-reset", authHandler.RequestPasswordReset)

	router.Post("/auth/password-reset/confirm", authHandler.ConfirmPasswordReset)
	router.Get("/auth/activate/{token}", authHandler.Activate)
	router.Post("/auth/logout", authHandler.Logout)
	router.Get("/auth/rate-limit-status", authHandler.RateLimitStatus)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(sessionService, ipConfig))

		r.Get("/auth/whoami", authHandler.WhoAmI)
		r.Get("/auth/login-history", authHandler.LoginHistory)
		r.Post("/auth/change-password", authHandler.ChangePassword)
		r.Delete("/auth/account", authHandler.DeleteAccount)
	})
}
