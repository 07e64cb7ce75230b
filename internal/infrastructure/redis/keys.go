package redisinfra

// Key builders for every cache namespace. Centralised so no two
// subsystems can collide on a prefix.

// RevokedKey marks a specific bearer token string as invalid.
func RevokedKey(token string) string { return "revoked:" + token }

// UserKey is the read-through cache of resolved user records.
func UserKey(userID string) string { return "user:" + userID }

// TwoFactorSetupKey holds a pending, not-yet-confirmed TOTP secret.
func TwoFactorSetupKey(userID string) string { return "2fa:setup:" + userID }

// TwoFactorVerifiedKey marks a login session as having passed the TOTP
// challenge.
func TwoFactorVerifiedKey(userID string) string { return "2fa:verified:" + userID }
