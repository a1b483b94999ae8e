package service

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the services; handlers map these to HTTP
// status codes.
var (
	ErrInvalidIdentifier    = errors.New("identifier is not a valid email or phone")
	ErrInvalidCode          = errors.New("code must be 6 digits")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTooManyRequests      = errors.New("too many codes requested for this identifier")
	ErrChallengeNotFound    = errors.New("no pending verification challenge")
	ErrCodeExpired          = errors.New("verification code has expired")
	ErrAttemptsExceeded     = errors.New("verification attempts exceeded")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists for this identifier")
	ErrVerificationRequired = errors.New("identifier has not completed verification")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountNotActive     = errors.New("account is not active")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// CodeMismatchError reports a wrong code together with how many attempts the
// caller has left on the current challenge.
type CodeMismatchError struct {
	Remaining int
}

func (e *CodeMismatchError) Error() string {
	return fmt.Sprintf("incorrect code, %d attempts remaining", e.Remaining)
}
