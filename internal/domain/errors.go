package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Auth-flow sentinels. Each wraps into one of the generic kinds above
// at the handler boundary; the extra identity lets services and tests
// distinguish outcomes the caller is deliberately not told apart.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountLocked is the single generic lockout condition. It never
	// carries the remaining lock time.
	ErrAccountLocked = errors.New("account temporarily locked, try again later")

	// ErrInvalidToken collapses malformed, bad-signature, expired and
	// revoked bearer tokens into one outcome.
	ErrInvalidToken = errors.New("invalid or expired token, please log in again")

	// ErrSetupExpired means no pending two-factor setup secret exists for
	// the user (never started, abandoned, or already consumed).
	ErrSetupExpired = errors.New("two-factor setup expired, start again")

	// ErrInvalidCode is a wrong one-time code (TOTP or emailed code).
	ErrInvalidCode = errors.New("invalid code")

	// ErrTwoFactorRequired means the request needs a completed two-factor
	// challenge before state-changing operations are allowed.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
)
