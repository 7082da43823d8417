package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"warden.dev/internal/fault"
	"warden.dev/internal/keys"
)

// SigningMaterial selects how a token is signed and how its signature is
// checked. The two implementations are SharedSecret and TenantKeys.
type SigningMaterial interface {
	method() jwt.SigningMethod
	sign(ctx context.Context, tok *jwt.Token, sub Subject) (string, error)
	keyfunc(ctx context.Context) jwt.Keyfunc
}

// KeySource is the slice of the key manager the codec needs.
type KeySource interface {
	WithSigningKey(ctx context.Context, tenantID string, fn func(kid string, key *rsa.PrivateKey) error) error
	ActivePublicKey(ctx context.Context, tenantID string) (keys.KeyMaterial, *rsa.PublicKey, error)
}

var _ KeySource = (*keys.Manager)(nil)

const minSharedSecret = 32

// SharedSecret signs with the platform HMAC secret (HS256). Used for Admin,
// Client and other platform-scoped tokens.
type SharedSecret struct {
	secret []byte
}

func NewSharedSecret(secret []byte) (SharedSecret, error) {
	if len(secret) < minSharedSecret {
		return SharedSecret{}, errors.New("token: platform secret must be at least 32 bytes")
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return SharedSecret{secret: cp}, nil
}

func (s SharedSecret) method() jwt.SigningMethod { return jwt.SigningMethodHS256 }

func (s SharedSecret) sign(_ context.Context, tok *jwt.Token, _ Subject) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("token: shared secret is not configured")
	}
	return tok.SignedString(s.secret)
}

func (s SharedSecret) keyfunc(context.Context) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		if len(s.secret) == 0 {
			return nil, errors.New("token: shared secret is not configured")
		}
		return s.secret, nil
	}
}

// TenantKeys signs with the tenant's active RSA key (RS256) and stamps its
// kid. Verification always resolves the tenant's current active key, so a
// token stops verifying as soon as its key is rotated out.
type TenantKeys struct {
	Source KeySource
}

func (k TenantKeys) method() jwt.SigningMethod { return jwt.SigningMethodRS256 }

func (k TenantKeys) sign(ctx context.Context, tok *jwt.Token, sub Subject) (string, error) {
	tenantID := strings.TrimSpace(sub.TenantID)
	if tenantID == "" {
		return "", ErrUnboundTenant
	}
	var signed string
	err := k.Source.WithSigningKey(ctx, tenantID, func(kid string, key *rsa.PrivateKey) error {
		tok.Header["kid"] = kid
		s, err := tok.SignedString(key)
		if err != nil {
			return err
		}
		signed = s
		return nil
	})
	return signed, err
}

func (k TenantKeys) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		claims, ok := t.Claims.(*Claims)
		if !ok || strings.TrimSpace(claims.TenantID) == "" {
			return nil, fault.ErrTokenMalformed.WithDetail("missing tenant binding")
		}
		rec, pub, err := k.Source.ActivePublicKey(ctx, claims.TenantID)
		if err != nil {
			if errors.Is(err, fault.ErrNoActiveKey) {
				return nil, fault.ErrInvalidSignature.With(err)
			}
			return nil, &lookupError{err: err}
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" || kid != rec.Kid {
			return nil, fault.ErrInvalidSignature.WithDetail("kid is not the tenant's active key")
		}
		return pub, nil
	}
}

var ErrUnboundTenant = errors.New("token: tenant-bound signing requires a tenant id")

// lookupError marks key-store failures so they surface unchanged instead of
// being reported as a bad token.
type lookupError struct {
	err error
}

func (e *lookupError) Error() string { return "token: resolve verification key: " + e.err.Error() }
func (e *lookupError) Unwrap() error { return e.err }

// Configured reports whether s holds a secret.
func (s SharedSecret) Configured() bool { return len(s.secret) > 0 }
