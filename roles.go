package auth

// Fixed role enumeration. Ids are stable and seeded with the schema;
// code references roles by id, names exist for display and claims.
const (
	// RoleUser is the baseline role every account holds
	RoleUser = 1
	// RoleSuperAdmin is the platform operator role
	RoleSuperAdmin = 2
	// RoleBusinessAdmin is granted to the creator of a business
	RoleBusinessAdmin = 3
	// RoleManager manages locations within a business
	RoleManager = 4
	// RoleStaff is a non-managing member of a business
	RoleStaff = 5
)

var roleNames = map[int]string{
	RoleUser:          "user",
	RoleSuperAdmin:    "super-admin",
	RoleBusinessAdmin: "business-admin",
	RoleManager:       "manager",
	RoleStaff:         "staff",
}

// RoleName returns the canonical name for a role id, empty if unknown.
func RoleName(id int) string {
	return roleNames[id]
}

// ParseRole resolves a role name back to its id.
func ParseRole(name string) (int, bool) {
	for id, n := range roleNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// IsValidRole reports whether the id belongs to the fixed enumeration.
func IsValidRole(id int) bool {
	_, ok := roleNames[id]
	return ok
}

// DefaultSignupRoles is the reviewed set of roles a new account
// receives at creation. Baseline role only; elevated roles are earned
// through explicit provisioning such as business registration.
func DefaultSignupRoles() []int {
	return []int{RoleUser}
}

// SeedRoles returns the fixed enumeration as insertable rows, for
// schema bootstrap and tests.
func SeedRoles() []*Role {
	roles := make([]*Role, 0, len(roleNames))
	for _, id := range []int{RoleUser, RoleSuperAdmin, RoleBusinessAdmin, RoleManager, RoleStaff} {
		roles = append(roles, &Role{ID: id, Name: roleNames[id]})
	}
	return roles
}
