package auth

import (
	"time"

	"github.com/portfolio-api/internal/domain"
)

// LockoutPolicy tracks consecutive failed login attempts on the
// credential itself and computes lock expiry. It is pure policy: the
// caller persists the mutated fields.
type LockoutPolicy struct {
	Threshold int           // failures before the account locks
	Duration  time.Duration // how long a lock lasts
}

// Locked reports whether the account is currently locked. An expired
// lock is simply ignored; it is cleared on the next successful login.
func (p LockoutPolicy) Locked(u *domain.User) bool {
	return u.LockUntil != nil && u.LockUntil.After(time.Now())
}

// RecordFailure increments the failure counter and sets the lock expiry
// once the counter reaches the threshold.
func (p LockoutPolicy) RecordFailure(u *domain.User) {
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= p.Threshold {
		until := time.Now().Add(p.Duration)
		u.LockUntil = &until
	}
}

// RecordSuccess resets the counter and clears any lock.
func (p LockoutPolicy) RecordSuccess(u *domain.User) {
	u.FailedLoginAttempts = 0
	u.LockUntil = nil
}
