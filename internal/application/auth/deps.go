package auth

import (
	"context"

	"github.com/portfolio-api/internal/domain"
)

// UserRepository is the credential store adapter the auth flows consume.
// withSecrets controls projection of the password hash and TOTP secret.
type UserRepository interface {
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string, withSecrets bool) (*domain.User, error)
	GetByEmail(ctx context.Context, email string, withSecrets bool) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// VerificationRepository stores emailed one-time codes.
type VerificationRepository interface {
	Put(ctx context.Context, v *domain.UserVerification) error
	Get(ctx context.Context, userID, verType string) (*domain.UserVerification, error)
	Delete(ctx context.Context, userID, verType string) error
}

// Mailer sends outbound mail. Implementations are invoked off the
// request path; a slow provider must not block auth flows.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// AlertPublisher receives security-relevant events (lockouts, failed
// revocation writes). Also invoked off the request path.
type AlertPublisher interface {
	Publish(ctx context.Context, subject, message string) error
}
