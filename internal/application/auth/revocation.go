package auth

import (
	"context"
	"log/slog"
	"time"

	jwtinfra "github.com/portfolio-api/internal/infrastructure/jwt"
	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
)

// fallbackRevocationTTL keeps a marker around for tokens whose expiry
// claim is unreadable or already in the past (clock skew, defensive
// revocation of expired tokens).
const fallbackRevocationTTL = time.Hour

// RevocationList marks individual token strings as invalid until their
// natural expiry. Built on the ephemeral cache: markers expire on their
// own and are never explicitly deleted.
type RevocationList struct {
	cache      *redisinfra.Cache
	jwt        *jwtinfra.Provider
	failClosed bool
	logger     *slog.Logger
}

func NewRevocationList(cache *redisinfra.Cache, jwt *jwtinfra.Provider, failClosed bool, logger *slog.Logger) *RevocationList {
	return &RevocationList{cache: cache, jwt: jwt, failClosed: failClosed, logger: logger}
}

// Revoke writes a marker keyed by the literal token string, with a TTL
// equal to the token's remaining lifetime. The expiry claim is read via
// the unverified decode: a token being revoked need not be valid.
func (r *RevocationList) Revoke(ctx context.Context, token string) error {
	ttl := fallbackRevocationTTL
	if claims, err := r.jwt.DecodeUnverified(token); err == nil && claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	if err := r.cache.Set(ctx, redisinfra.RevokedKey(token), "1", ttl); err != nil {
		r.logger.Error("failed to record token revocation", "err", err)
		return err
	}
	return nil
}

// IsRevoked is a plain existence check. When the cache is unreachable
// the result follows the configured policy: fail-open (token treated as
// not revoked) by default, fail-closed when RevocationFailClosed is
// set. Either way the outage is logged.
func (r *RevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	_, found, err := r.cache.GetStrict(ctx, redisinfra.RevokedKey(token))
	if err != nil {
		if r.failClosed {
			r.logger.Error("revocation check unavailable, failing closed", "err", err)
			return true, err
		}
		r.logger.Error("revocation check unavailable, failing open", "err", err)
		return false, nil
	}
	return found, nil
}
