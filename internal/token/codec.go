package token

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"warden.dev/internal/fault"
	"warden.dev/internal/ids"
	"warden.dev/internal/obs"
)

// Codec issues and verifies tokens. It is stateless apart from its
// configuration and safe for concurrent use.
type Codec struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

type Option func(*Codec)

func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = strings.TrimSpace(issuer) }
}

// WithTTL overrides the lifetime for one purpose.
func WithTTL(p Purpose, ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl <= 0 {
			return
		}
		switch p {
		case PurposeAccess:
			c.accessTTL = ttl
		case PurposeRefresh:
			c.refreshTTL = ttl
		}
	}
}

// WithLeeway tolerates clock skew when checking exp.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) {
		if d >= 0 {
			c.leeway = d
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL reports the configured lifetime for p.
func (c *Codec) TTL(p Purpose) time.Duration {
	if p == PurposeRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue signs a token for sub. Refresh tokens never carry role claims.
func (c *Codec) Issue(ctx context.Context, sub Subject, purpose Purpose, m SigningMaterial) (Issued, error) {
	if m == nil {
		return Issued{}, errors.New("token: signing material is required")
	}
	if !purpose.Valid() {
		return Issued{}, fmt.Errorf("token: unknown purpose %q", purpose)
	}
	if strings.TrimSpace(sub.ID) == "" || !sub.Kind.Valid() {
		return Issued{}, errors.New("token: subject id and kind are required")
	}

	now := c.now().UTC()
	exp := now.Add(c.TTL(purpose))
	claims := &Claims{
		Kind:          sub.Kind,
		TenantID:      sub.TenantID,
		ApplicationID: sub.ApplicationID,
		Purpose:       purpose,
		SessionID:     sub.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID,
			Issuer:    c.issuer,
			ID:        ids.New(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if purpose == PurposeAccess {
		claims.Roles = normalizeRoles(sub.Roles)
		claims.Role = strings.TrimSpace(sub.Role)
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	signed, err := m.sign(ctx, tok, sub)
	if err != nil {
		return Issued{}, err
	}
	obs.RecordTokenIssued(string(purpose), m.method().Alg())
	return Issued{Token: signed, ID: claims.ID, Purpose: purpose, ExpiresAt: exp}, nil
}

// Verify checks signature, expiry and purpose. Failures are fault errors:
// TokenMalformed, InvalidSignature, TokenExpired or TokenPurposeMismatch.
// Errors from the key store itself are returned unchanged.
func (c *Codec) Verify(ctx context.Context, raw string, expected Purpose, m SigningMaterial) (*Claims, error) {
	if m == nil {
		return nil, errors.New("token: signing material is required")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fault.ErrMissingCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, m.keyfunc(ctx)); err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" || !claims.Kind.Valid() || !claims.Purpose.Valid() {
		return nil, fault.ErrTokenMalformed.WithDetail("incomplete claim set")
	}
	if claims.Purpose != expected {
		return nil, fault.ErrTokenPurposeMismatch.WithDetail(fmt.Sprintf("got %s, want %s", claims.Purpose, expected))
	}
	return claims, nil
}

func classify(err error) error {
	var lookup *lookupError
	if errors.As(err, &lookup) {
		return lookup.err
	}
	if fe, ok := fault.As(err); ok {
		return fe
	}
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fault.ErrTokenMalformed.With(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fault.ErrInvalidSignature.With(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fault.ErrTokenExpired.With(err)
	default:
		return fault.ErrInvalidCredential.With(err)
	}
}

func normalizeRoles(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return out
}
