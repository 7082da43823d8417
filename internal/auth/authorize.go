package auth

import (
	"fmt"

	"warden.dev/internal/principal"
	"warden.dev/internal/subject"
)

// Principal is an authenticated identity with its resolved permissions.
type Principal struct {
	Identity    *principal.Identity
	Permissions map[string]struct{}
}

// NewPrincipal resolves the permissions granted by the identity's roles.
func NewPrincipal(id *principal.Identity) Principal {
	set := make(map[string]struct{})
	if id != nil {
		for _, role := range id.Roles.Slice() {
			for _, p := range rolePermissions[role] {
				set[p] = struct{}{}
			}
		}
	}
	return Principal{Identity: id, Permissions: set}
}

// HasPermission reports whether the principal can execute action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// Authorize checks that id holds perm for tenantID. Admins act across
// tenants; a client only acts on its own tenant.
func Authorize(id *principal.Identity, perm, tenantID string) error {
	if id == nil {
		return fmt.Errorf("%w: no identity", ErrForbidden)
	}
	if !NewPrincipal(id).HasPermission(perm) {
		return fmt.Errorf("%w: %s lacks %s", ErrForbidden, id.Kind, perm)
	}
	switch id.Kind {
	case subject.KindAdmin:
		return nil
	case subject.KindClient:
		if tenantID != "" && id.TenantID == tenantID {
			return nil
		}
		return fmt.Errorf("%w: tenant %s", ErrForbidden, tenantID)
	default:
		return fmt.Errorf("%w: %s", ErrForbidden, id.Kind)
	}
}
