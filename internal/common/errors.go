// Package common defines shared constants and sentinel errors used across
// the server and client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorStorage      = errors.New("storage failure")
	ErrorValidation   = errors.New("validation error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// OTP errors. AuthFailure deliberately carries no hint about whether the
	// code was wrong, used or expired.
	ErrorAuthFailure = errors.New("invalid or expired code")
	ErrorRateLimited = errors.New("too many attempts")

	// Placement errors.
	ErrorNoNodes = errors.New("no available storage nodes")

	// Share link errors.
	ErrorLinkUnavailable = errors.New("share link is not available")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
