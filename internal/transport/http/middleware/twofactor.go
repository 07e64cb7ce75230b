package middleware

import (
	"net/http"

	"github.com/portfolio-api/internal/domain"
	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
)

// RequireTwoFactor gates state-changing endpoints. Identities with the
// second factor enabled must carry a live verified flag in the cache;
// everyone else passes through. Enabling 2FA never invalidates existing
// tokens — this gate is the only place the extra requirement bites.
func RequireTwoFactor(cache *redisinfra.Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				writeUnauthenticated(w)
				return
			}
			if u.TwoFactorEnabled {
				// A cache outage reads as a missing flag: the gate fails
				// closed rather than waving writes through unchallenged.
				if v, ok := cache.Get(r.Context(), redisinfra.TwoFactorVerifiedKey(u.UserID)); !ok || v != "1" {
					writeFail(w, http.StatusForbidden, domain.ErrTwoFactorRequired.Error())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
