package clubauth

// Role is the authorization level associated with an identity
type Role string

const (
	// RoleUnknown means the role has not been resolved yet; it authorizes nothing
	RoleUnknown Role = ""
	// RoleMember is a regular club member (browse, join)
	RoleMember Role = "member"
	// RoleClubManager manages clubs and events
	RoleClubManager Role = "clubManager"
	// RoleAdmin moderates the whole platform
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleClubManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level. Unknown
// roles never satisfy any minimum.
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleMember:      0,
		RoleClubManager: 1,
		RoleAdmin:       2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{
		RoleMember,
		RoleClubManager,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
