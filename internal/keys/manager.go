package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"warden.dev/internal/fault"
	"warden.dev/internal/ids"
	"warden.dev/internal/obs"
)

const kidEntropyBytes = 16

// Manager drives the tenant signing key lifecycle on top of a Store.
// It holds no per-tenant state: every call reads the store.
type Manager struct {
	store  Store
	cipher *Cipher
	bits   int
	now    func() time.Time
	log    zerolog.Logger
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithKeyBits overrides the RSA modulus size.
func WithKeyBits(bits int) Option {
	return func(m *Manager) {
		if bits >= 1024 {
			m.bits = bits
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

func NewManager(store Store, cipher *Cipher, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("keys: store is required")
	}
	if cipher == nil {
		return nil, errors.New("keys: cipher is required")
	}
	m := &Manager{
		store:  store,
		cipher: cipher,
		bits:   DefaultKeyBits,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Generate creates the tenant's first active key. It never replaces an
// existing active key: that is ErrKeyConflict, and the existing key is left as is.
func (m *Manager) Generate(ctx context.Context, tenantID string) (gen GeneratedKey, err error) {
	defer func() { obs.RecordKeyOp("generate", err) }()

	tenantID, err = requireTenant(tenantID)
	if err != nil {
		return GeneratedKey{}, err
	}
	// Cheap early exit; the store constraint below is what actually decides.
	if _, err := m.store.Active(ctx, tenantID); err == nil {
		return GeneratedKey{}, fault.ErrKeyConflict.WithDetail("tenant " + tenantID)
	} else if !errors.Is(err, ErrNotFound) {
		return GeneratedKey{}, fmt.Errorf("keys: load active key: %w", err)
	}

	rec, gen, err := m.build(tenantID)
	if err != nil {
		return GeneratedKey{}, err
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrActiveExists) {
			return GeneratedKey{}, fault.ErrKeyConflict.WithDetail("tenant " + tenantID)
		}
		return GeneratedKey{}, fmt.Errorf("keys: persist key: %w", err)
	}
	m.log.Info().Str("tenant_id", tenantID).Str("kid", rec.Kid).Msg("tenant key generated")
	return gen, nil
}

// Rotate retires the tenant's active key and installs a fresh one in a
// single store operation. There is no verification grace period: tokens
// signed under the retired key stop verifying as soon as this returns.
func (m *Manager) Rotate(ctx context.Context, tenantID string) (gen GeneratedKey, err error) {
	defer func() { obs.RecordKeyOp("rotate", err) }()

	tenantID, err = requireTenant(tenantID)
	if err != nil {
		return GeneratedKey{}, err
	}
	rec, gen, err := m.build(tenantID)
	if err != nil {
		return GeneratedKey{}, err
	}
	if err := m.store.Rotate(ctx, rec, rec.CreatedAt); err != nil {
		if errors.Is(err, ErrActiveExists) {
			return GeneratedKey{}, fault.ErrKeyConflict.WithDetail("concurrent rotation for tenant " + tenantID)
		}
		return GeneratedKey{}, fmt.Errorf("keys: rotate: %w", err)
	}
	m.log.Info().Str("tenant_id", tenantID).Str("kid", rec.Kid).Msg("tenant key rotated")
	return gen, nil
}

// Revoke marks one of the tenant's keys revoked.
func (m *Manager) Revoke(ctx context.Context, tenantID, keyID string) (err error) {
	defer func() { obs.RecordKeyOp("revoke", err) }()

	tenantID, err = requireTenant(tenantID)
	if err != nil {
		return err
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return fault.ErrKeyNotFound.WithDetail("key id is empty")
	}
	if err := m.store.Revoke(ctx, tenantID, keyID, m.now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fault.ErrKeyNotFound.WithDetail("key " + keyID)
		}
		return fmt.Errorf("keys: revoke: %w", err)
	}
	m.log.Info().Str("tenant_id", tenantID).Str("key_id", keyID).Msg("tenant key revoked")
	return nil
}

// ActiveKey is the active record together with its decrypted private key.
// The caller owns PrivateKey and must not retain it past its immediate use.
type ActiveKey struct {
	Record     KeyMaterial
	PrivateKey *rsa.PrivateKey
}

// GetActive returns the tenant's active key, decrypting the private part on demand.
func (m *Manager) GetActive(ctx context.Context, tenantID string) (*ActiveKey, error) {
	rec, err := m.active(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	priv, err := m.decrypt(rec)
	if err != nil {
		return nil, err
	}
	return &ActiveKey{Record: *rec, PrivateKey: priv}, nil
}

// WithSigningKey decrypts the tenant's active private key, passes it to fn
// for a single signing operation, and drops it when fn returns.
func (m *Manager) WithSigningKey(ctx context.Context, tenantID string, fn func(kid string, key *rsa.PrivateKey) error) error {
	rec, err := m.active(ctx, tenantID)
	if err != nil {
		return err
	}
	priv, err := m.decrypt(rec)
	if err != nil {
		return err
	}
	defer wipe(priv)
	return fn(rec.Kid, priv)
}

// ActivePublicKey returns the active record and its parsed public key
// without touching the private material.
func (m *Manager) ActivePublicKey(ctx context.Context, tenantID string) (KeyMaterial, *rsa.PublicKey, error) {
	rec, err := m.active(ctx, tenantID)
	if err != nil {
		return KeyMaterial{}, nil, err
	}
	pub, err := ParsePublicKey(rec.PublicKeyPEM)
	if err != nil {
		return KeyMaterial{}, nil, fmt.Errorf("keys: parse public key %s: %w", rec.KeyID, err)
	}
	return *rec, pub, nil
}

// List returns summaries of every key the tenant ever had, newest first.
func (m *Manager) List(ctx context.Context, tenantID string) ([]Summary, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}
	recs, err := m.store.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("keys: list: %w", err)
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Summary())
	}
	return out, nil
}

func (m *Manager) active(ctx context.Context, tenantID string) (*KeyMaterial, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}
	rec, err := m.store.Active(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fault.ErrNoActiveKey.WithDetail("tenant " + tenantID)
		}
		return nil, fmt.Errorf("keys: load active key: %w", err)
	}
	return rec, nil
}

func (m *Manager) decrypt(rec *KeyMaterial) (*rsa.PrivateKey, error) {
	plain, err := m.cipher.Open(rec.EncryptedPrivateKey, recordAAD(rec.TenantID, rec.KeyID))
	if err != nil {
		return nil, err
	}
	defer clear(plain)
	priv, err := ParsePrivateKey(plain)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key %s: %w", rec.KeyID, err)
	}
	return priv, nil
}

// build produces a new active record and the one-time plaintext result.
func (m *Manager) build(tenantID string) (*KeyMaterial, GeneratedKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, m.bits)
	if err != nil {
		return nil, GeneratedKey{}, fmt.Errorf("keys: generate rsa key: %w", err)
	}
	defer wipe(priv)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, GeneratedKey{}, fmt.Errorf("keys: marshal private key: %w", err)
	}
	defer clear(privDER)
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, GeneratedKey{}, fmt.Errorf("keys: marshal public key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	defer clear(privPEM)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	kid, err := ids.Opaque(kidEntropyBytes)
	if err != nil {
		return nil, GeneratedKey{}, err
	}
	rec := &KeyMaterial{
		ID:           ids.New(),
		TenantID:     tenantID,
		KeyID:        ids.UUID(),
		Kid:          kid,
		PublicKeyPEM: pubPEM,
		Algorithm:    AlgorithmRS256,
		KeySize:      m.bits,
		Status:       StatusActive,
		CreatedAt:    m.now().UTC(),
	}
	sealed, err := m.cipher.Seal(privPEM, recordAAD(rec.TenantID, rec.KeyID))
	if err != nil {
		return nil, GeneratedKey{}, err
	}
	rec.EncryptedPrivateKey = sealed

	return rec, GeneratedKey{
		KeyID:      rec.KeyID,
		Kid:        rec.Kid,
		PublicKey:  pubPEM,
		PrivateKey: string(privPEM),
		Algorithm:  rec.Algorithm,
	}, nil
}

func requireTenant(tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	return tenantID, nil
}

func recordAAD(tenantID, keyID string) []byte {
	return []byte(tenantID + "/" + keyID)
}

// wipe zeroes the private exponent and primes. Best effort: math/big may
// have copied limbs elsewhere.
func wipe(k *rsa.PrivateKey) {
	if k == nil {
		return
	}
	if k.D != nil {
		k.D.SetInt64(0)
	}
	for _, p := range k.Primes {
		if p != nil {
			p.SetInt64(0)
		}
	}
}
