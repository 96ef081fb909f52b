package auth

import "slices"

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermEffectRead    Permission = "effect:read"
	PermEffectControl Permission = "effect:control"
	PermEffectAny     Permission = "effect:any"
	PermPatchRead     Permission = "patch:read"
	PermPatchManage   Permission = "patch:manage"
	PermSystemDump    Permission = "system:dump"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleClient: {
		PermEffectRead,
		PermEffectControl,
		PermPatchRead,
	},
	RoleAdmin: {
		PermEffectRead,
		PermEffectControl,
		PermEffectAny, // act on other clients' handles
		PermPatchRead,
		PermPatchManage,
		PermSystemDump,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the role's permissions, or nil for
// unknown roles.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
