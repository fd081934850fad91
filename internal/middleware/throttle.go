package middleware

import (
	"errors"
	"net/http"

	"github.com/censusconnect/gatekeeper/internal/models"
	"github.com/censusconnect/gatekeeper/internal/services"
	pkghttp "github.com/censusconnect/gatekeeper/pkg/http"
)

// Throttle enforces the store-backed sliding-window limit for one named
// endpoint. Every request through it consumes one attempt, including the
// ones that end up rejected downstream. Storage outages fail closed with
// 503 rather than letting an attacker wait one out.
func Throttle(throttle *services.ThrottleService, endpoint string, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := pkghttp.ExtractClientIP(r, ipConfig)

			allowed, err := throttle.Check(r.Context(), clientIP, endpoint)
			if err != nil {
				if errors.Is(err, models.ErrStorageUnavailable) {
					pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
					return
				}
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}
			if !allowed {
				pkghttp.WriteTooManyRequests(w, "Rate limit exceeded. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
