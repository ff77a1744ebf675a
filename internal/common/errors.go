// Package common defines shared constants and sentinel errors used across
// the magic-link service. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrInvalidInput marks caller mistakes: malformed options, empty email.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration is fatal at startup: the process must not serve traffic.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidToken covers every decode failure of a signed token
	// (bad signature, malformed payload, expired).
	ErrInvalidToken = errors.New("invalid token")

	// ErrRefreshTokenInvalid is returned for absent, expired or already redeemed refresh tokens.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")

	// ErrPrincipalNotFound never leaves the service layer; it collapses into a negative verdict.
	ErrPrincipalNotFound = errors.New("principal not found")
)
