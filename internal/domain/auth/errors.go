package auth

import "errors"

var (
	ErrValidation         = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFAInvalid         = errors.New("invalid mfa code")
	ErrMFAUnavailable     = errors.New("mfa requires encryption key")
	ErrMFANotSetUp        = errors.New("mfa setup required")
	ErrDomainNotAllowed   = errors.New("email domain not allowed")
	ErrSignupDisabled     = errors.New("self signup disabled")
	ErrRateLimited        = errors.New("too many requests")
	ErrTokenNotFound      = errors.New("token not found")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenUsed          = errors.New("token already used")
	ErrWeakPassword       = errors.New("password too short")
	ErrUserNotFound       = errors.New("user not found")
)
