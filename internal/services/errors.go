package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure. Handlers map kinds to HTTP statuses.
type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindDuplicateEmail        Kind = "DUPLICATE_EMAIL"
	KindInvalidCredentials    Kind = "INVALID_CREDENTIALS"
	KindEmailNotVerified      Kind = "EMAIL_NOT_VERIFIED"
	KindUnauthorized          Kind = "UNAUTHORIZED"
	KindTokenExpired          Kind = "TOKEN_EXPIRED"
	KindAlreadyVerified       Kind = "ALREADY_VERIFIED"
	KindUserNotFound          Kind = "USER_NOT_FOUND"
	KindResetAlreadyRequested Kind = "RESET_ALREADY_REQUESTED"
	KindPasswordMismatch      Kind = "PASSWORD_MISMATCH"
	KindNotificationFailed    Kind = "NOTIFICATION_FAILED"
	KindNotFound              Kind = "NOT_FOUND"
	KindForbidden             Kind = "FORBIDDEN"
	KindInternal              Kind = "INTERNAL"
)

// Error is returned by every service operation. Message is safe to show to
// clients; Err carries the internal cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrTokenExpired)
// holds regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation            = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrDuplicateEmail        = &Error{Kind: KindDuplicateEmail, Message: "User already exists"}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials, Message: "Invalid email or password"}
	ErrEmailNotVerified      = &Error{Kind: KindEmailNotVerified, Message: "Email not verified. Please check your email for the verification link."}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
	ErrTokenExpired          = &Error{Kind: KindTokenExpired, Message: "Token expired"}
	ErrAlreadyVerified       = &Error{Kind: KindAlreadyVerified, Message: "Email already verified"}
	ErrUserNotFound          = &Error{Kind: KindUserNotFound, Message: "User not found"}
	ErrResetAlreadyRequested = &Error{Kind: KindResetAlreadyRequested, Message: "Reset password already requested"}
	ErrPasswordMismatch      = &Error{Kind: KindPasswordMismatch, Message: "Passwords do not match"}
	ErrNotificationFailed    = &Error{Kind: KindNotificationFailed, Message: "Failed to send email"}
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "Not found"}
	ErrForbidden             = &Error{Kind: KindForbidden, Message: "Insufficient workspace role"}
	ErrInternal              = &Error{Kind: KindInternal, Message: "Internal server error"}
)

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func internalError(op string, err error) error {
	return &Error{Kind: KindInternal, Message: ErrInternal.Message, Err: fmt.Errorf("%s: %w", op, err)}
}

// withCause keeps the client-facing message of sentinel but records err.
func withCause(sentinel *Error, err error) error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// PublicMessage returns the message that may be shown to a client.
func PublicMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return ErrInternal.Message
}
