package auth

// Role represents a caller role for role-based access control
type Role string

const (
	// RoleAdmin may manage the model catalogue
	RoleAdmin Role = "admin"

	// RoleUser may run and manage their own tasks
	RoleUser Role = "user"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role has permission for a required role.
// Admin has all permissions.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}
