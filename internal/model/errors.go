package model

import "errors"

// ErrNotFound is returned by VaultStore implementations when no record
// exists for the user.
var ErrNotFound = errors.New("not found")

// Vault error taxonomy. The surrounding application maps these onto its own
// transport's status codes.
var (
	ErrNotInitialized        = errors.New("vault not initialized")
	ErrAlreadyInitialized    = errors.New("vault already initialized")
	ErrInvalidPassphrase     = errors.New("invalid passphrase")
	ErrInvalidRecoveryPhrase = errors.New("invalid recovery phrase")
	ErrMissingPassphrase     = errors.New("passphrase must not be empty")
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenUserMismatch     = errors.New("token user mismatch")
	ErrCorruptSecretsBlob    = errors.New("invalid secrets blob")
)
