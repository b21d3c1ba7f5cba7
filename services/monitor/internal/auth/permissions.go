package auth

// Roles.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleReadonly = "readonly"
)

// Permissions.
const (
	PermReadStatus    = "read:status"
	PermReadLogs      = "read:logs"
	PermReadTemplates = "read:templates"
	PermReadCaptures  = "read:captures"
	PermReadDashboard = "read:dashboard"

	PermWriteCaptures  = "write:captures"
	PermWriteTemplates = "write:templates"
	PermWriteConfig    = "write:config"

	PermAdminKeys  = "admin:keys"
	PermAdminUsers = "admin:users"
)

var readPerms = []string{
	PermReadStatus, PermReadLogs, PermReadTemplates, PermReadCaptures, PermReadDashboard,
}

// permissions is the fixed role matrix.
var permissions = map[string][]string{
	RoleAdmin: append(append([]string{}, readPerms...),
		PermWriteCaptures, PermWriteTemplates, PermWriteConfig,
		PermAdminKeys, PermAdminUsers),
	RoleOperator: append(append([]string{}, readPerms...),
		PermWriteCaptures, PermWriteTemplates),
	RoleReadonly: append([]string{}, readPerms...),
}

// ValidRole reports whether the role exists in the matrix.
func ValidRole(role string) bool {
	_, ok := permissions[role]
	return ok
}

// Roles returns the known role names.
func Roles() []string {
	return []string{RoleAdmin, RoleOperator, RoleReadonly}
}

// HasPermission reports whether a role grants a permission. Unknown roles
// grant nothing.
func HasPermission(role, permission string) bool {
	for _, p := range permissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the grant list for a role.
func Permissions(role string) []string {
	return append([]string(nil), permissions[role]...)
}
