package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/portfolio-api/internal/domain"
	jwtinfra "github.com/portfolio-api/internal/infrastructure/jwt"
	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
	"github.com/portfolio-api/internal/pkg/id"
	"github.com/portfolio-api/internal/pkg/password"
	pkgtoken "github.com/portfolio-api/internal/pkg/token"
)

const (
	verificationCodeTTL = 24 * time.Hour
	resetCodeTTL        = 15 * time.Minute
	asyncDispatchBudget = 30 * time.Second
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
}

type LoginResult struct {
	Token            string
	RequireTwoFactor bool
	User             *domain.User
}

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	VerifyEmail(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ChangePassword(ctx context.Context, userID, current, newPassword, rawToken string) error
	Deactivate(ctx context.Context, userID, currentPassword, rawToken string) error
	SetUserStatus(ctx context.Context, userID string, active bool) error
	SetUserRole(ctx context.Context, userID, role string) error
}

// ServiceDeps carries every collaborator the auth service needs.
type ServiceDeps struct {
	UserRepo         UserRepository
	VerificationRepo VerificationRepository
	Mailer           Mailer
	Alerts           AlertPublisher
	JWTProvider      *jwtinfra.Provider
	Cache            *redisinfra.Cache
	Revocations      *RevocationList
	Lockout          LockoutPolicy
	TokenTTL         time.Duration
	RememberTokenTTL time.Duration
	Logger           *slog.Logger
}

type service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &service{deps: deps}
}

func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if _, err := s.deps.UserRepo.GetByEmail(ctx, req.Email, false); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.deps.UserRepo.Put(ctx, u); err != nil {
		return nil, err
	}
	if err := s.issueVerificationCode(ctx, u); err != nil {
		// The account exists either way; the user can request a resend.
		s.deps.Logger.Warn("failed to issue verification code", "user_id", u.UserID, "err", err)
	}
	return u.Public(), nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.deps.UserRepo.GetByEmail(ctx, req.Email, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, domain.ErrInvalidCredentials)
	}
	if !u.Active {
		// Deactivated accounts are indistinguishable from bad credentials.
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, domain.ErrInvalidCredentials)
	}

	// A locked account short-circuits before any password comparison.
	if s.deps.Lockout.Locked(u) {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, domain.ErrAccountLocked)
	}

	if !password.Compare(u.PasswordHash, req.Password) {
		s.deps.Lockout.RecordFailure(u)
		if err := s.deps.UserRepo.Update(ctx, u.UserID, map[string]interface{}{
			"failed_login_attempts": u.FailedLoginAttempts,
			"lock_until":            u.LockUntil,
		}); err != nil {
			s.deps.Logger.Warn("failed to persist lockout counter", "user_id", u.UserID, "err", err)
		}
		if s.deps.Lockout.Locked(u) {
			s.alertAsync("account locked",
				fmt.Sprintf("account %s locked after %d failed login attempts", u.UserID, u.FailedLoginAttempts))
			return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, domain.ErrAccountLocked)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, domain.ErrInvalidCredentials)
	}

	s.deps.Lockout.RecordSuccess(u)
	now := time.Now().UTC()
	u.LastLogin = &now
	if err := s.deps.UserRepo.Update(ctx, u.UserID, map[string]interface{}{
		"failed_login_attempts": 0,
		"lock_until":            nil,
		"last_login":            now.Format(time.RFC3339),
	}); err != nil {
		s.deps.Logger.Warn("failed to persist login bookkeeping", "user_id", u.UserID, "err", err)
	}

	ttl := s.deps.TokenTTL
	if req.Remember {
		ttl = s.deps.RememberTokenTTL
	}
	token, err := s.deps.JWTProvider.Sign(u.UserID, u.Email, u.Role, ttl)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:            token,
		RequireTwoFactor: u.TwoFactorEnabled,
		User:             u.Public(),
	}, nil
}

// Logout revokes the presented token. A failed revocation write is a
// security-relevant event but does not fail the request: the client is
// discarding the token either way.
func (s *service) Logout(ctx context.Context, token string) error {
	if err := s.deps.Revocations.Revoke(ctx, token); err != nil {
		s.alertAsync("revocation write failed", "logout revocation could not be recorded")
	}
	return nil
}

func (s *service) VerifyEmail(ctx context.Context, email, code string) error {
	u, err := s.deps.UserRepo.GetByEmail(ctx, email, false)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err := s.consumeCode(ctx, u.UserID, domain.VerificationEmail, code); err != nil {
		return err
	}
	return s.deps.UserRepo.Update(ctx, u.UserID, map[string]interface{}{"verified": true})
}

func (s *service) ResendVerification(ctx context.Context, email string) error {
	u, err := s.deps.UserRepo.GetByEmail(ctx, email, false)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if u.Verified {
		return fmt.Errorf("email already verified: %w", domain.ErrConflict)
	}
	return s.issueVerificationCode(ctx, u)
}

func (s *service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.deps.UserRepo.GetByEmail(ctx, email, false)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	code, err := pkgtoken.NewCode(6)
	if err != nil {
		return err
	}
	v := &domain.UserVerification{
		UserID:    u.UserID,
		Type:      domain.VerificationReset,
		Code:      code,
		ExpiresAt: time.Now().Add(resetCodeTTL).Unix(),
	}
	if err := s.deps.VerificationRepo.Put(ctx, v); err != nil {
		return err
	}
	s.mailAsync(u.Email, "Password reset code", "Your password reset code: "+code)
	return nil
}

func (s *service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	u, err := s.deps.UserRepo.GetByEmail(ctx, email, false)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err := s.consumeCode(ctx, u.UserID, domain.VerificationReset, code); err != nil {
		return err
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	// A completed reset also clears any lockout: the owner has proven
	// control of the mailbox.
	if err := s.deps.UserRepo.Update(ctx, u.UserID, map[string]interface{}{
		"password_hash":         hash,
		"failed_login_attempts": 0,
		"lock_until":            nil,
	}); err != nil {
		return err
	}
	s.invalidateCachedUser(ctx, u.UserID)
	return nil
}

func (s *service) ChangePassword(ctx context.Context, userID, current, newPassword, rawToken string) error {
	u, err := s.deps.UserRepo.Get(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if !password.Compare(u.PasswordHash, current) {
		return fmt.Errorf("current password incorrect: %w", domain.ErrUnauthorized)
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.deps.UserRepo.Update(ctx, userID, map[string]interface{}{"password_hash": hash}); err != nil {
		return err
	}
	s.invalidateCachedUser(ctx, userID)
	// The token that authorised this change is no longer trustworthy.
	if err := s.deps.Revocations.Revoke(ctx, rawToken); err != nil {
		s.alertAsync("revocation write failed", "post-password-change revocation could not be recorded")
	}
	return nil
}

func (s *service) Deactivate(ctx context.Context, userID, currentPassword, rawToken string) error {
	u, err := s.deps.UserRepo.Get(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if !password.Compare(u.PasswordHash, currentPassword) {
		return fmt.Errorf("current password incorrect: %w", domain.ErrUnauthorized)
	}
	if err := s.deps.UserRepo.Update(ctx, userID, map[string]interface{}{"active": false}); err != nil {
		return err
	}
	s.invalidateCachedUser(ctx, userID)
	if err := s.deps.Revocations.Revoke(ctx, rawToken); err != nil {
		s.alertAsync("revocation write failed", "post-deactivation revocation could not be recorded")
	}
	return nil
}

// SetUserStatus is the admin-side activate/deactivate. Existing tokens
// of a deactivated user die at the middleware's active-account check as
// soon as the cached record expires.
func (s *service) SetUserStatus(ctx context.Context, userID string, active bool) error {
	if _, err := s.deps.UserRepo.Get(ctx, userID, false); err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err := s.deps.UserRepo.Update(ctx, userID, map[string]interface{}{"active": active}); err != nil {
		return err
	}
	s.invalidateCachedUser(ctx, userID)
	return nil
}

// SetUserRole changes an account's role. Tokens issued before the
// change keep their old role claim until they expire; the gate reads
// the claim, not the record.
func (s *service) SetUserRole(ctx context.Context, userID, role string) error {
	if !domain.ValidRole(role) {
		return fmt.Errorf("unknown role %q: %w", role, domain.ErrBadRequest)
	}
	if _, err := s.deps.UserRepo.Get(ctx, userID, false); err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err := s.deps.UserRepo.Update(ctx, userID, map[string]interface{}{"role": role}); err != nil {
		return err
	}
	s.invalidateCachedUser(ctx, userID)
	return nil
}

func (s *service) issueVerificationCode(ctx context.Context, u *domain.User) error {
	code, err := pkgtoken.NewCode(6)
	if err != nil {
		return err
	}
	v := &domain.UserVerification{
		UserID:    u.UserID,
		Type:      domain.VerificationEmail,
		Code:      code,
		ExpiresAt: time.Now().Add(verificationCodeTTL).Unix(),
	}
	if err := s.deps.VerificationRepo.Put(ctx, v); err != nil {
		return err
	}
	s.mailAsync(u.Email, "Confirm your email", "Your verification code: "+code)
	return nil
}

func (s *service) consumeCode(ctx context.Context, userID, verType, code string) error {
	v, err := s.deps.VerificationRepo.Get(ctx, userID, verType)
	if err != nil {
		return fmt.Errorf("code not found: %w", domain.ErrBadRequest)
	}
	if v.Code != code {
		return fmt.Errorf("%w: %w", domain.ErrBadRequest, domain.ErrInvalidCode)
	}
	if v.ExpiresAt < time.Now().Unix() {
		return fmt.Errorf("code expired: %w", domain.ErrBadRequest)
	}
	if err := s.deps.VerificationRepo.Delete(ctx, userID, verType); err != nil {
		s.deps.Logger.Warn("failed to delete verification record", "user_id", userID, "type", verType, "err", err)
	}
	return nil
}

func (s *service) invalidateCachedUser(ctx context.Context, userID string) {
	if err := s.deps.Cache.Delete(ctx, redisinfra.UserKey(userID)); err != nil {
		s.deps.Logger.Warn("failed to invalidate cached user", "user_id", userID, "err", err)
	}
}

// mailAsync dispatches mail off the request path. Delivery failures are
// logged, never surfaced.
func (s *service) mailAsync(to, subject, body string) {
	if s.deps.Mailer == nil {
		return
	}
	go func() {
		if err := s.deps.Mailer.SendEmail(to, subject, body); err != nil {
			s.deps.Logger.Warn("email dispatch failed", "to", to, "subject", subject, "err", err)
		}
	}()
}

func (s *service) alertAsync(subject, message string) {
	s.deps.Logger.Error("security event", "subject", subject, "detail", message)
	if s.deps.Alerts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncDispatchBudget)
		defer cancel()
		if err := s.deps.Alerts.Publish(ctx, subject, message); err != nil {
			s.deps.Logger.Warn("security alert publish failed", "subject", subject, "err", err)
		}
	}()
}
