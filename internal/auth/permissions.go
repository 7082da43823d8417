package auth

import "warden.dev/internal/principal"

const (
	PermKeysRead      = "keys.read"
	PermKeysManage    = "keys.manage"
	PermUsersSuspend  = "users.suspend"
	PermTenantsManage = "tenants.manage"
	PermAppsManage    = "apps.manage"
	PermUsersManage   = "users.manage"
	PermRolesReview   = "roles.review"
)

const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleSupport = "support"
)

var rolePermissions = map[string][]string{
	RoleOwner: {
		PermKeysRead, PermKeysManage, PermUsersSuspend,
		PermTenantsManage, PermAppsManage, PermUsersManage, PermRolesReview,
	},
	RoleAdmin: {
		PermKeysRead, PermKeysManage, PermUsersSuspend,
		PermTenantsManage, PermAppsManage, PermUsersManage, PermRolesReview,
	},
	RoleSupport:          {PermKeysRead, PermUsersSuspend},
	principal.RoleClient: {PermKeysRead, PermKeysManage, PermAppsManage, PermUsersManage, PermRolesReview},
}
