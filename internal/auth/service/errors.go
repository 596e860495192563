package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrUserNotFound and ErrInvalidPassword wrap ErrInvalidCredentials so the
	// HTTP layer can collapse them into one message.
	ErrUserNotFound    = fmt.Errorf("%w: user not found", ErrInvalidCredentials)
	ErrInvalidPassword = fmt.Errorf("%w: invalid password", ErrInvalidCredentials)

	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrSessionIndeterminate = errors.New("session could not be resolved")
	ErrMFANotEnrolled       = errors.New("mfa not enrolled")

	ErrInvalidRequest  = errors.New("invalid_request")
	ErrInvalidCode     = errors.New("malformed TOTP code")
	ErrInvalidTOTPCode = errors.New("invalid TOTP code")

	ErrUsernameTaken = errors.New("username already taken")
)
