package twofactor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/portfolio-api/internal/application/auth"
	"github.com/portfolio-api/internal/domain"
	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
	"github.com/portfolio-api/internal/pkg/password"
	"github.com/portfolio-api/internal/pkg/totp"
)

const (
	setupSecretTTL  = 10 * time.Minute
	verifiedFlagTTL = time.Hour
)

type Setup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// Service drives the TOTP lifecycle: DISABLED → SETUP_PENDING → ENABLED,
// plus the per-login challenge and the explicit disable path. Pending
// secrets live only in the cache; the credential is mutated exactly
// once, when setup is confirmed.
type Service interface {
	BeginSetup(ctx context.Context, userID string) (*Setup, error)
	VerifyAndEnable(ctx context.Context, userID, code string) error
	VerifyLogin(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID, currentPassword string) error
}

type ServiceDeps struct {
	UserRepo UserRepository
	Cache    *redisinfra.Cache
	Issuer   string // shown in authenticator apps
	Logger   *slog.Logger
}

// UserRepository is the slice of the credential store this service needs.
type UserRepository = auth.UserRepository

type service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &service{deps: deps}
}

// BeginSetup generates a fresh shared secret and provisioning URI and
// parks the secret in the cache. Re-invoking overwrites any prior
// pending secret. The credential itself is untouched.
func (s *service) BeginSetup(ctx context.Context, userID string) (*Setup, error) {
	u, err := s.deps.UserRepo.Get(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := s.deps.Cache.Set(ctx, redisinfra.TwoFactorSetupKey(userID), secret, setupSecretTTL); err != nil {
		return nil, fmt.Errorf("could not stage setup secret: %w", err)
	}
	return &Setup{
		Secret: secret,
		URI:    totp.ProvisionURI(secret, s.deps.Issuer, u.Email),
	}, nil
}

// VerifyAndEnable confirms the pending secret with a code from the
// user's authenticator. A wrong code keeps the secret staged so the
// user can retry within the TTL; a correct code persists the secret to
// the credential and consumes the cache entry.
func (s *service) VerifyAndEnable(ctx context.Context, userID, code string) error {
	secret, ok := s.deps.Cache.Get(ctx, redisinfra.TwoFactorSetupKey(userID))
	if !ok {
		return fmt.Errorf("%w: %w", domain.ErrBadRequest, domain.ErrSetupExpired)
	}

	valid, err := totp.Verify(secret, code, time.Now())
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("%w: %w", domain.ErrBadRequest, domain.ErrInvalidCode)
	}

	if err := s.deps.UserRepo.Update(ctx, userID, map[string]interface{}{
		"two_factor_secret":  secret,
		"two_factor_enabled": true,
	}); err != nil {
		return err
	}
	s.invalidateCachedUser(ctx, userID)
	if err := s.deps.Cache.Delete(ctx, redisinfra.TwoFactorSetupKey(userID)); err != nil {
		s.deps.Logger.Warn("failed to delete staged setup secret", "user_id", userID, "err", err)
	}
	return nil
}

// VerifyLogin answers a login-time challenge. Success writes the
// verified flag the middleware's two-factor gate checks. Failures are
// deliberately not counted toward lockout: only primary-credential
// failures feed that policy.
func (s *service) VerifyLogin(ctx context.Context, userID, code string) error {
	u, err := s.deps.UserRepo.Get(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == "" {
		return fmt.Errorf("two-factor not enabled: %w", domain.ErrBadRequest)
	}

	valid, err := totp.Verify(u.TwoFactorSecret, code, time.Now())
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, domain.ErrInvalidCode)
	}

	if err := s.deps.Cache.Set(ctx, redisinfra.TwoFactorVerifiedKey(userID), "1", verifiedFlagTTL); err != nil {
		// Without the flag the gate will still reject writes; surface it.
		return fmt.Errorf("could not record verification: %w", err)
	}
	return nil
}

// Disable turns off the second factor. It requires the primary
// password, not a TOTP code: a lost authenticator must not lock the
// user out of disabling it.
func (s *service) Disable(ctx context.Context, userID, currentPassword string) error {
	u, err := s.deps.UserRepo.Get(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if !password.Compare(u.PasswordHash, currentPassword) {
		return fmt.Errorf("current password incorrect: %w", domain.ErrUnauthorized)
	}

	if err := s.deps.UserRepo.Update(ctx, userID, map[string]interface{}{
		"two_factor_secret":  "",
		"two_factor_enabled": false,
	}); err != nil {
		return err
	}
	s.invalidateCachedUser(ctx, userID)
	if err := s.deps.Cache.Delete(ctx, redisinfra.TwoFactorVerifiedKey(userID)); err != nil {
		s.deps.Logger.Warn("failed to clear verified flag", "user_id", userID, "err", err)
	}
	return nil
}

func (s *service) invalidateCachedUser(ctx context.Context, userID string) {
	if err := s.deps.Cache.Delete(ctx, redisinfra.UserKey(userID)); err != nil {
		s.deps.Logger.Warn("failed to invalidate cached user", "user_id", userID, "err", err)
	}
}
