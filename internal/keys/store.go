package keys

import (
	"context"
	"time"
)

// Store persists tenant key records. Implementations own the
// at-most-one-active-key-per-tenant invariant: Insert and Rotate must fail
// with ErrActiveExists instead of ever leaving two active rows for a tenant.
type Store interface {
	// Insert persists k as the tenant's active key.
	Insert(ctx context.Context, k *KeyMaterial) error
	// Rotate revokes the tenant's active key (if any) and inserts next, atomically.
	Rotate(ctx context.Context, next *KeyMaterial, at time.Time) error
	// Active returns the tenant's active key or ErrNotFound.
	Active(ctx context.Context, tenantID string) (*KeyMaterial, error)
	// Revoke marks one key revoked. Revoking a revoked key is a no-op; an unknown key is ErrNotFound.
	Revoke(ctx context.Context, tenantID, keyID string, at time.Time) error
	// List returns every record of the tenant, newest first.
	List(ctx context.Context, tenantID string) ([]KeyMaterial, error)
}
