package identity

// adminRoleRank orders the back-office sub-roles from least to most
// privileged. The implicit default sits above support so a healed grant
// without an explicit sub-role can still page through customer records.
var adminRoleRank = map[AdminRole]int{
	AdminRoleSupport: 0,
	AdminRoleDefault: 1,
	AdminRoleManager: 2,
	AdminRoleSuper:   3,
}

// IsValidAdminRole checks if the role is one of the predefined sub-roles
func IsValidAdminRole(role AdminRole) bool {
	_, ok := adminRoleRank[role]
	return ok
}

// AdminRoleAtLeast checks if the role meets the minimum required level.
// Unknown roles never satisfy any minimum.
func AdminRoleAtLeast(role, minRole AdminRole) bool {
	currentLevel, exists := adminRoleRank[role]
	if !exists {
		return false
	}

	minLevel, exists := adminRoleRank[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AdminRoleCanViewSessions checks if the role can page through customer
// sessions and activity trails
func AdminRoleCanViewSessions(role AdminRole) bool {
	return AdminRoleAtLeast(role, AdminRoleSupport)
}

// AdminRoleCanEditCustomers checks if the role can mutate customer records
func AdminRoleCanEditCustomers(role AdminRole) bool {
	return AdminRoleAtLeast(role, AdminRoleManager)
}

// AdminRoleCanManageGrants checks if the role can hand out or revoke
// administrative grants
func AdminRoleCanManageGrants(role AdminRole) bool {
	return AdminRoleAtLeast(role, AdminRoleSuper)
}

// AllAdminRoles returns the predefined sub-roles in hierarchical order
func AllAdminRoles() []AdminRole {
	return []AdminRole{
		AdminRoleSupport,
		AdminRoleDefault,
		AdminRoleManager,
		AdminRoleSuper,
	}
}

// ParseAdminRole safely parses a string into a known AdminRole
func ParseAdminRole(roleStr string) (AdminRole, bool) {
	role := AdminRole(roleStr)
	return role, IsValidAdminRole(role)
}
