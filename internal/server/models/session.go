package models

import "time"

// Session is an issued authentication token. The token string handed to the
// caller is a signed JWT whose ID claim is TokenID; revocation is tracked by
// that ID so a blacklisted token is rejected even before its nominal expiry.
type Session struct {
	TokenID   string
	AccountID string
	Role      Role
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}
