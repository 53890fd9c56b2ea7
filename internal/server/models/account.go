// Package models defines the persistent entities of the record integrity
// and confidentiality subsystem.
package models

import "time"

// Role is the closed set of principal kinds. Authorization decision points
// switch over it exhaustively; there is no subtype hierarchy.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleStaff   Role = "STAFF"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Account is an authenticated principal. Accounts are never physically
// deleted (audit integrity depends on actor references staying resolvable);
// they are deactivated instead.
type Account struct {
	ID             string
	Email          string
	FullName       string
	Role           Role
	Department     string
	CredentialHash string
	// CredentialHistory holds the most recent previous credential hashes,
	// newest first, bounded by config.CredentialHistoryDepth.
	CredentialHistory []string
	FailedAttempts    int
	LockedUntil       *time.Time
	Active            bool
	CreatedAt         time.Time
}

// Locked reports whether the account is in its lockout cooldown at now.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}
