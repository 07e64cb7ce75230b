package middleware

import (
	"log/slog"
	"net/http"
	"time"

	jwtinfra "github.com/portfolio-api/internal/infrastructure/jwt"
)

// NewTokenHeader carries the replacement token of a soft refresh.
const NewTokenHeader = "X-New-Token"

// RefreshToken runs after successful authentication. When the current
// token's remaining lifetime falls under the threshold, a fresh token
// for the same claims is surfaced via a response header. The old token
// stays valid until its natural expiry — this is additive refresh, not
// rotation.
func RefreshToken(jwt *jwtinfra.Provider, threshold, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := TokenFromContext(r.Context())
			if ok {
				// The expiry read here is TTL math only; the token was
				// already signature-verified by the gate.
				if claims, err := jwt.DecodeUnverified(raw); err == nil && claims.ExpiresAt != nil {
					if time.Until(claims.ExpiresAt.Time) < threshold {
						fresh, err := jwt.Sign(claims.UserID, claims.Email, claims.Role, ttl)
						if err != nil {
							logger.Warn("token refresh failed", "user_id", claims.UserID, "err", err)
						} else {
							w.Header().Set(NewTokenHeader, fresh)
						}
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
