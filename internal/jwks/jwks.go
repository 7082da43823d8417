// Package jwks publishes each tenant's active public key as a JSON Web Key Set.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"warden.dev/internal/keys"
)

// KeySource is satisfied by *keys.Manager.
type KeySource interface {
	ActivePublicKey(ctx context.Context, tenantID string) (keys.KeyMaterial, *rsa.PublicKey, error)
}

// Key is one RSA JWK. Only public parameters are ever set.
type Key struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type Document struct {
	Keys []Key `json:"keys"`
}

type Publisher struct {
	source KeySource
}

func NewPublisher(source KeySource) *Publisher {
	return &Publisher{source: source}
}

// Document returns the tenant's key set. It carries the active key only,
// identified by its kid; the storage key id is never published.
func (p *Publisher) Document(ctx context.Context, tenantID string) (Document, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Document{}, errors.New("jwks: tenant id is required")
	}
	rec, pub, err := p.source.ActivePublicKey(ctx, tenantID)
	if err != nil {
		return Document{}, err
	}
	key, err := FromPublicKey(rec.Kid, rec.Algorithm, pub)
	if err != nil {
		return Document{}, err
	}
	return Document{Keys: []Key{key}}, nil
}

// FromPublicKey encodes the RSA modulus and exponent as unpadded base64url.
func FromPublicKey(kid, alg string, pub *rsa.PublicKey) (Key, error) {
	if pub == nil || pub.N == nil {
		return Key{}, fmt.Errorf("jwks: nil public key for kid %s", kid)
	}
	return Key{
		Kty: "RSA",
		Use: "sig",
		Alg: alg,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}, nil
}

// PublicKey decodes k back into an RSA public key.
func (k Key) PublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("jwks: unsupported key type %q", k.Kty)
	}
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwks: decode n: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwks: decode e: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("jwks: invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// Lookup returns the key with kid.
func (d Document) Lookup(kid string) (Key, bool) {
	for _, k := range d.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return Key{}, false
}
