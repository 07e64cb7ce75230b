package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/portfolio-api/internal/application/auth"
	"github.com/portfolio-api/internal/domain"
	jwtinfra "github.com/portfolio-api/internal/infrastructure/jwt"
	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	userKey   contextKey = "user"
	tokenKey  contextKey = "token"
)

const userCacheTTL = 10 * time.Minute

// AuthDeps are the collaborators of the authentication gate.
type AuthDeps struct {
	JWT         *jwtinfra.Provider
	Revocations *auth.RevocationList
	Users       auth.UserRepository
	Cache       *redisinfra.Cache
	Logger      *slog.Logger
}

// Auth is the request gate. The pipeline is strictly ordered and
// short-circuits on the first failure: bearer extraction, revocation
// check, signature/expiry verification, user resolution (read-through
// cache), active-account check, context attach. Every failure mode
// renders the same unauthenticated response; the caller cannot tell a
// revoked token from an expired one or a deactivated account from a
// deleted one.
func Auth(deps AuthDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, ok := authenticate(deps, r)
			if !ok {
				writeUnauthenticated(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth runs the same pipeline but converts every failure into
// "proceed unauthenticated". Used for endpoints that behave differently
// for known vs. anonymous callers without requiring a session.
func OptionalAuth(deps AuthDeps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ctx, ok := authenticate(deps, r); ok {
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(deps AuthDeps, r *http.Request) (context.Context, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, false
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenStr == "" {
		return nil, false
	}

	// Revocation precedes signature verification: a revoked token is dead
	// even while its signature and expiry remain valid.
	// Under the fail-closed policy an unreachable cache reports revoked.
	if revoked, _ := deps.Revocations.IsRevoked(r.Context(), tokenStr); revoked {
		return nil, false
	}

	claims, err := deps.JWT.Verify(tokenStr)
	if err != nil {
		return nil, false
	}

	u, err := resolveUser(r.Context(), deps, claims.UserID)
	if err != nil {
		return nil, false
	}
	if !u.Active {
		return nil, false
	}

	ctx := context.WithValue(r.Context(), claimsKey, claims)
	ctx = context.WithValue(ctx, userKey, u)
	ctx = context.WithValue(ctx, tokenKey, tokenStr)
	return ctx, true
}

// resolveUser reads the user through the cache, falling back to the
// credential store and repopulating on a miss. Cache outages degrade to
// a store read.
func resolveUser(ctx context.Context, deps AuthDeps, userID string) (*domain.User, error) {
	if raw, ok := deps.Cache.Get(ctx, redisinfra.UserKey(userID)); ok {
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			return &u, nil
		}
		// Corrupt entry: fall through to the store and overwrite it.
	}

	u, err := deps.Users.Get(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	if buf, err := json.Marshal(u); err == nil {
		if err := deps.Cache.Set(ctx, redisinfra.UserKey(userID), string(buf), userCacheTTL); err != nil {
			deps.Logger.Warn("failed to populate user cache", "user_id", userID, "err", err)
		}
	}
	return u, nil
}

// ClaimsFromContext extracts verified JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}

// UserFromContext extracts the resolved user from the request context.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey).(*domain.User)
	return u, ok
}

// TokenFromContext extracts the raw bearer token from the request context.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok
}
