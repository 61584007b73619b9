package auth

// Permission represents a named capability of the admin API.
type Permission string

// Permission constants.
const (
	PermCardRead     Permission = "card:read"
	PermCardManage   Permission = "card:manage"
	PermEventRead    Permission = "event:read"
	PermBackupRead   Permission = "backup:read"
	PermBackupManage Permission = "backup:manage"
	PermSystemRead   Permission = "system:read"
	PermAuditRead    Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermCardRead,
		PermEventRead,
		PermBackupRead,
		PermSystemRead,
	},
	RoleAdmin: {
		PermCardRead,
		PermCardManage,
		PermEventRead,
		PermBackupRead,
		PermBackupManage,
		PermSystemRead,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
