package middleware

import (
	"net/http"

	"github.com/portfolio-api/internal/domain"
)

// RequireRole returns middleware that allows access only to identities
// whose role matches one of the provided role names (e.g. domain.RoleAdmin).
// It is a stateless boolean check over the already-resolved identity.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeUnauthenticated(w)
				return
			}
			for _, role := range allowedRoles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeFail(w, http.StatusForbidden, domain.ErrForbidden.Error())
		})
	}
}
