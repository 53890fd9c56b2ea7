// Package common defines shared constants and sentinel errors used across
// the medvault components. Callers should use errors.Is to match these
// values; services never surface anything more detailed to the outside.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Generic service-level errors.
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	// Authentication errors.
	ErrInvalidCredential = errors.New("invalid credential")
	ErrAccountLocked     = errors.New("account locked")
	ErrAccountInactive   = errors.New("account inactive")
	ErrReusedCredential  = errors.New("credential was used recently")

	// Session token lifecycle errors.
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
	ErrSessionRevoked = errors.New("session revoked")

	// Vault errors.
	ErrEncryptionUnavailable = errors.New("encryption key not loaded")
	ErrPayloadTooLarge       = errors.New("payload exceeds canonical byte bound")

	// Ledger registry errors.
	ErrRegistryUnavailable = errors.New("ledger registry unavailable")
	ErrDuplicateAnchor     = errors.New("anchor already registered")

	// Audit sink errors. Fatal to the enclosing operation.
	ErrAuditUnavailable = errors.New("audit sink unavailable")
)
