package domain

import "time"

type User struct {
	UserID       string `json:"id" dynamodbav:"user_id"`
	Email        string `json:"email" dynamodbav:"email"`
	PasswordHash string `json:"-" dynamodbav:"password_hash"`
	Role         string `json:"role" dynamodbav:"role"`
	FirstName    string `json:"first_name" dynamodbav:"first_name"`
	LastName     string `json:"last_name" dynamodbav:"last_name"`
	Active       bool   `json:"active" dynamodbav:"active"`
	Verified     bool   `json:"verified" dynamodbav:"verified"`

	// Lockout state. The counter increments on every wrong password and
	// resets to zero on a successful login; LockUntil is set once the
	// counter crosses the configured threshold.
	FailedLoginAttempts int        `json:"-" dynamodbav:"failed_login_attempts"`
	LockUntil           *time.Time `json:"-" dynamodbav:"lock_until"`

	TwoFactorSecret  string `json:"-" dynamodbav:"two_factor_secret"`
	TwoFactorEnabled bool   `json:"two_factor_enabled" dynamodbav:"two_factor_enabled"`

	LastLogin *time.Time `json:"last_login,omitempty" dynamodbav:"last_login"`
	CreatedAt time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time  `json:"updated" dynamodbav:"updated_at"`
}

type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// Public strips secret-bearing fields before a user record leaves the
// service layer.
func (u *User) Public() *User {
	out := *u
	out.PasswordHash = ""
	out.TwoFactorSecret = ""
	return &out
}
