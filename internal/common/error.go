// Package common defines shared constants and sentinel errors used across
// the SeamlessAuth client layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Transport-level errors.
	ErrUnavailable = errors.New("service unavailable")

	// Credential lifecycle errors.
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSessionExpired = errors.New("session expired")
	ErrNoRefreshToken = errors.New("no refresh token available")

	// Expected business errors (user-visible, flow stays put).
	ErrDuplicateAccount    = errors.New("account already exists")
	ErrVerificationFailed  = errors.New("verification failed")
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrInvalidVerifyCode   = errors.New("invalid verification code")
	ErrPasskeyNotSupported = errors.New("passkey authenticator not available")

	// Ceremony errors (retryable, not a security event).
	ErrCeremonyCancelled = errors.New("ceremony cancelled")

	// Local persistence errors.
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)
