package auth

import "errors"

// Role is the authorisation tier carried in an admin API token.
type Role string

const (
	// RoleViewer can read the registry, the access log, security events
	// and backup listings.
	RoleViewer Role = "viewer"

	// RoleAdmin can additionally change the registry and create, restore
	// and clean up backups.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleAdmin}

// IsValidRole returns true if r is a role a token may carry.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// MinSecretLength is the shortest signing secret accepted for admin tokens.
const MinSecretLength = 32

// Auth errors.
var (
	ErrTokenInvalid  = errors.New("invalid token")
	ErrForbidden     = errors.New("insufficient permissions")
	ErrSecretTooWeak = errors.New("jwt secret must be at least 32 characters")
	ErrInvalidRole   = errors.New("invalid role")
)
