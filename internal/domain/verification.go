package domain

// Verification types stored in the user_verifications table.
const (
	VerificationEmail = "email"
	VerificationReset = "reset"
)

type UserVerification struct {
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	Type      string `json:"type" dynamodbav:"type"` // "email" | "reset"
	Code      string `json:"-" dynamodbav:"code"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
}
