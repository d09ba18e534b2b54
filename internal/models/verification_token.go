package models

import "time"

// Purpose restricts which workflow may consume a token.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email-verification"
	PurposeResetPassword     Purpose = "reset-password"
	PurposeLogin             Purpose = "login"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposeResetPassword, PurposeLogin:
		return true
	}
	return false
}

// VerificationToken is the store-side record of an issued token. At most one
// exists per (UserID, Purpose); saving a new one replaces the previous.
type VerificationToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	Purpose   Purpose   `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the token has not yet expired at now.
func (t *VerificationToken) Active(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
