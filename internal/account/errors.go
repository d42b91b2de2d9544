package account

import "errors"

// Expected rejections. Anything else returned by Service is an internal failure.
var (
	ErrValidation         = errors.New("invalid input")
	ErrDuplicateAccount   = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrInvalidOTP         = errors.New("invalid verification code")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNotFound           = errors.New("not found")
)
